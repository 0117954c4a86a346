// Package port provides mlx90363.Port implementations.
package port

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/mlx90363/pkg/mlx90363"
)

// FailedByte is delivered in place of a byte whose transfer failed. A frame
// containing it fails the checksum.
const FailedByte byte = 0xff

// Transferer shifts one byte out and one byte in, blocking.
type Transferer interface {
	Transfer(tx byte) (rx byte, err error)
}

// SpeedSetter is implemented by Transferers with a configurable clock.
type SpeedSetter interface {
	SetSpeed(physic.Frequency) error
}

// Async turns a blocking Transferer into an mlx90363.Port. Transfers run
// in the goroutine of Run, which is the completion context of the session.
type Async struct {
	Transferer Transferer

	handler mlx90363.ByteHandler
	txCh    chan byte
	lock    sync.RWMutex

	transfers atomic.Uint64
	failures  atomic.Uint64
}

// NewAsync creates an Async port.
func NewAsync(t Transferer) *Async {
	return &Async{
		Transferer: t,
		txCh:       make(chan byte, 1),
	}
}

// Attach implements mlx90363.Port.
func (a *Async) Attach(h mlx90363.ByteHandler) {
	a.lock.Lock()
	a.handler = h
	a.lock.Unlock()
}

// Exchange implements mlx90363.Port. At most one byte is in flight, so the
// queue never blocks.
func (a *Async) Exchange(tx byte) {
	a.txCh <- tx
}

// SetSpeed implements mlx90363.Port.
func (a *Async) SetSpeed(f physic.Frequency) error {
	if s, ok := a.Transferer.(SpeedSetter); ok {
		return s.SetSpeed(f)
	}
	return nil
}

// Transfers gets the number of bytes exchanged and the number of failures.
func (a *Async) Transfers() (total, failed uint64) {
	return a.transfers.Load(), a.failures.Load()
}

// Run implements framework.Runnable.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx := <-a.txCh:
			a.transfer(tx)
		}
	}
}

func (a *Async) transfer(tx byte) {
	rx, err := a.Transferer.Transfer(tx)
	a.transfers.Add(1)
	if err != nil {
		a.failures.Add(1)
		glog.Errorf("transfer 0x%02x failed: %v", tx, err)
		rx = FailedByte
	}
	a.lock.RLock()
	h := a.handler
	a.lock.RUnlock()
	if h != nil {
		h.OnByteExchanged(rx)
	}
}
