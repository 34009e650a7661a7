package rpcclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// ConnectionCheck is a node acceptance test performed after connection.
type ConnectionCheck byte

const (
	// CheckNone accepts any node.
	CheckNone ConnectionCheck = iota
	// CheckHealth requires the node to return its latest block header.
	CheckHealth
	// CheckArchive requires the node to know the very first masterchain
	// blocks.
	CheckArchive
)

// String implements the fmt.Stringer interface.
func (c ConnectionCheck) String() string {
	switch c {
	case CheckNone:
		return "none"
	case CheckHealth:
		return "health"
	case CheckArchive:
		return "archive"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

// ParseConnectionCheck parses check name as returned from String, empty
// string is CheckNone.
func ParseConnectionCheck(s string) (ConnectionCheck, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CheckNone, nil
	case "health", "healthy":
		return CheckHealth, nil
	case "archive":
		return CheckArchive, nil
	default:
		return 0, fmt.Errorf("%w: unknown connection check %q", ErrIllegalArgument, s)
	}
}

// Check runs the given acceptance test.
func (c *Connection) Check(ctx context.Context, check ConnectionCheck) error {
	switch check {
	case CheckNone:
		return nil
	case CheckHealth:
		info, err := c.GetMasterchainInfo(ctx)
		if err != nil {
			return err
		}
		_, err = c.GetBlockHeader(ctx, info.Last)
		return err
	case CheckArchive:
		if _, err := c.Sync(ctx); err != nil {
			return err
		}
		_, err := c.LookupBlock(ctx, tl.LookupBySeqno, tl.MasterBlockID(1), 0, 0)
		return err
	default:
		return fmt.Errorf("%w: %s", ErrIllegalArgument, check)
	}
}
