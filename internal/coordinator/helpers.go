package coordinator

import (
	"errors"

	"github.com/rtio-systems/subkernel/internal/mastererr"
	"github.com/rtio-systems/subkernel/internal/proto"
	"github.com/rtio-systems/subkernel/internal/registry"
)

// translate maps a registry.StateError into the public mastererr.Error
// shape the host session expects.
func translate(op string, id uint32, err error) error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return mastererr.NewSubkernel(op, id, mastererr.ErrCodeIncorrectState, "subkernel not registered")
	case errors.Is(err, registry.ErrIncorrectState):
		return mastererr.NewSubkernel(op, id, mastererr.ErrCodeIncorrectState, "operation not valid in current state")
	default:
		return err
	}
}

func wrapDrtio(op string, id uint32, err error) error {
	return mastererr.WrapDrtio(op, id, err)
}

func newTimeout(op string, id uint32) error {
	return mastererr.NewSubkernel(op, id, mastererr.ErrCodeTimeout, "deadline exceeded")
}

func newSessionKilled(op string, id uint32) error {
	return mastererr.NewSubkernel(op, id, mastererr.ErrCodeSessionKilled, "cancelled")
}

func newSubkernelFinished(op string, id uint32) error {
	return mastererr.NewSubkernel(op, id, mastererr.ErrCodeSubkernelFinished, "subkernel already finished")
}

func encodeOutgoing(count uint8, tag uint8, args []byte) []byte {
	return proto.EncodeOutgoing(count, tag, args)
}
