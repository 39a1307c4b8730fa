// Package probe decides whether a host is answering, combining a network
// liveness check with a login-prompt check.
package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// PingResult is the result of a single echo request.
type PingResult struct {
	Success bool
	RTT     time.Duration
	Error   error
}

// Pinger sends ICMP echo requests. The interface exists so tests can mock
// ping behavior.
type Pinger interface {
	// Ping sends count echo requests to target with a per-request timeout
	// and returns one result per attempt.
	Ping(ctx context.Context, target string, count int, timeout time.Duration) ([]PingResult, error)
}

// NewICMPPinger returns a pinger backed by raw ICMP echo requests.
// Requires elevated privileges on most systems.
func NewICMPPinger() Pinger {
	return &icmpPinger{}
}

type icmpPinger struct{}

func (p *icmpPinger) Ping(ctx context.Context, target string, count int, timeout time.Duration) ([]PingResult, error) {
	ip, err := resolveIPv4(target)
	if err != nil {
		return nil, err
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("failed to create ICMP listener (may require elevated privileges): %w", err)
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	results := make([]PingResult, 0, count)

	for seq := 1; seq <= count; seq++ {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		results = append(results, p.echo(conn, ip, id, seq, timeout))

		// Brief pause between requests.
		if seq < count {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	return results, nil
}

// echo performs a single echo request/reply round.
func (p *icmpPinger) echo(conn *icmp.PacketConn, ip net.IP, id, seq int, timeout time.Duration) PingResult {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: []byte("host-rescue-probe"),
		},
	}

	payload, err := msg.Marshal(nil)
	if err != nil {
		return PingResult{Error: fmt.Errorf("failed to marshal ICMP message: %w", err)}
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return PingResult{Error: fmt.Errorf("failed to set deadline: %w", err)}
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, &net.IPAddr{IP: ip}); err != nil {
		return PingResult{Error: fmt.Errorf("failed to send echo request: %w", err)}
	}

	reply := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(reply)
		if err != nil {
			return PingResult{Error: fmt.Errorf("failed to receive echo reply: %w", err)}
		}

		// 1 is the ICMP protocol number for IPv4.
		msg, err := icmp.ParseMessage(1, reply[:n])
		if err != nil {
			return PingResult{Error: fmt.Errorf("failed to parse reply: %w", err)}
		}

		// Ignore traffic that is not our echo reply; the listener sees every
		// ICMP packet on the host.
		if msg.Type != ipv4.ICMPTypeEchoReply || peer.String() != ip.String() {
			continue
		}
		if echo, ok := msg.Body.(*icmp.Echo); ok && echo.ID != id {
			continue
		}

		return PingResult{Success: true, RTT: time.Since(start)}
	}
}

// resolveIPv4 resolves target to its first IPv4 address.
func resolveIPv4(target string) (net.IP, error) {
	if ip := net.ParseIP(target); ip != nil {
		if ip.To4() == nil {
			return nil, fmt.Errorf("target %s is not an IPv4 address", target)
		}
		return ip, nil
	}

	ips, err := net.LookupIP(target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target %s: %w", target, err)
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address found for target %s", target)
}
