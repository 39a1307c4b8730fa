package util

import (
	"errors"
	"strings"
	"testing"

	"github.com/supporttools/host-rescue/pkg/types"
)

func TestCheckDependencies(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(name string) (string, error) {
		return "/usr/bin/" + name, nil
	}
	if err := CheckDependencies(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lookPath = func(name string) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	}
	err := CheckDependencies()
	if err == nil {
		t.Fatal("expected an error when ssh is missing")
	}
	if !errors.Is(err, types.ErrDependencyMissing) {
		t.Errorf("error %v does not wrap ErrDependencyMissing", err)
	}
	if !strings.Contains(err.Error(), "ssh") {
		t.Errorf("error %q does not name the missing program", err)
	}
}
