package power

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/supporttools/host-rescue/pkg/logger"
	"github.com/supporttools/host-rescue/pkg/types"
)

// APC PowerNet MIB locations for the switched-outlet control and name
// tables, indexed per outlet.
const (
	oidOutletControlTable = ".1.3.6.1.4.1.318.1.1.4.4.2.1.3" // sPDUOutletCtl
	oidOutletNameTable    = ".1.3.6.1.4.1.318.1.1.4.4.2.1.4" // sPDUOutletCtlName
)

// Control values accepted by the sPDUOutletCtl column.
const (
	outletCommandOn     = 1
	outletCommandOff    = 2
	outletCommandReboot = 3
)

// PDUClient is the structured read/write surface of the unit. Implemented by
// gosnmp; tests substitute a mock.
type PDUClient interface {
	Connect() error
	Close() error
	WalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
	Set(pdus []gosnmp.SnmpPDU) (*gosnmp.SnmpPacket, error)
}

// gosnmpClient adapts *gosnmp.GoSNMP to PDUClient.
type gosnmpClient struct {
	*gosnmp.GoSNMP
}

func (c gosnmpClient) Close() error {
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}

// NewPDUClient builds an SNMP client for the outlet endpoint using its write
// community.
func NewPDUClient(endpoint types.OutletEndpoint, port uint16, timeout time.Duration) PDUClient {
	return gosnmpClient{&gosnmp.GoSNMP{
		Target:    endpoint.Addr,
		Port:      port,
		Community: endpoint.WriteCommunity,
		Version:   gosnmp.Version1,
		Timeout:   timeout,
		Retries:   1,
	}}
}

// SNMPCycler power-cycles the target's outlet through the unit's structured
// interface: resolve the outlet index, write OFF, wait, write ON.
type SNMPCycler struct {
	endpoint types.OutletEndpoint
	client   PDUClient
	resolver *Resolver
	offWait  time.Duration
}

// NewSNMPCycler creates the structured-path cycler. The resolver reads the
// outlet-name table through the same client.
func NewSNMPCycler(endpoint types.OutletEndpoint, client PDUClient, offWait time.Duration) *SNMPCycler {
	c := &SNMPCycler{
		endpoint: endpoint,
		client:   client,
		offWait:  offWait,
	}
	c.resolver = NewResolver(c)
	return c
}

// Name implements types.Cycler.
func (c *SNMPCycler) Name() string {
	return "outlet-snmp"
}

// OutletNames implements TableReader by walking the unit's outlet-name
// table. The walk returns entries in index order.
func (c *SNMPCycler) OutletNames(ctx context.Context) ([]string, error) {
	pdus, err := c.client.WalkAll(oidOutletNameTable)
	if err != nil {
		return nil, fmt.Errorf("outlet-name table walk failed: %w", err)
	}

	names := make([]string, 0, len(pdus))
	for _, pdu := range pdus {
		switch v := pdu.Value.(type) {
		case []byte:
			names = append(names, string(v))
		case string:
			names = append(names, v)
		default:
			names = append(names, fmt.Sprintf("%v", v))
		}
	}
	return names, nil
}

// CyclePower implements types.Cycler. A write failure after OFF has been
// sent performs no automatic ON retry; the host may be left powered off for
// the terminal path to recover, and the condition is logged prominently.
func (c *SNMPCycler) CyclePower(ctx context.Context) error {
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("%w: SNMP connect to %s failed: %v", types.ErrOutletCycleFailed, c.endpoint.Addr, err)
	}
	defer c.client.Close()

	label := c.endpoint.Outlet.Label
	index, err := c.resolver.ResolveIndex(ctx, label)
	if err != nil {
		return err
	}
	logger.Infof("Outlet %q resolved to index %d on %s", label, index, c.endpoint.Addr)

	if err := c.writeCommand(index, outletCommandOff); err != nil {
		return fmt.Errorf("%w: OFF write for outlet %d failed: %v", types.ErrOutletCycleFailed, index, err)
	}
	logger.Infof("Outlet %d switched off, waiting %v before switching on", index, c.offWait)

	if err := sleepCtx(ctx, c.offWait); err != nil {
		logger.Errorf("Interrupted during off-wait; outlet %d on %s may remain powered off", index, c.endpoint.Addr)
		return fmt.Errorf("%w: interrupted during off-wait: %v", types.ErrOutletCycleFailed, err)
	}

	if err := c.writeCommand(index, outletCommandOn); err != nil {
		logger.Errorf("ON write failed after OFF; outlet %d on %s may remain powered off", index, c.endpoint.Addr)
		return fmt.Errorf("%w: ON write for outlet %d failed: %v", types.ErrOutletCycleFailed, index, err)
	}
	logger.Infof("Outlet %d switched on", index)

	return nil
}

// writeCommand writes one control value at the outlet's row of the control
// table.
func (c *SNMPCycler) writeCommand(index, command int) error {
	pdu := gosnmp.SnmpPDU{
		Name:  fmt.Sprintf("%s.%d", oidOutletControlTable, index),
		Type:  gosnmp.Integer,
		Value: command,
	}
	result, err := c.client.Set([]gosnmp.SnmpPDU{pdu})
	if err != nil {
		return err
	}
	if result != nil && result.Error != gosnmp.NoError {
		return fmt.Errorf("unit rejected write: %s", result.Error)
	}
	return nil
}

var _ types.Cycler = (*SNMPCycler)(nil)
