package component

import (
	"context"

	"github.com/ipvm-wg/homestar/irrecoverable"
)

// Run starts c and blocks until either ctx is cancelled or c reports done,
// returning the first irrecoverable error thrown by c, if any.
func Run(ctx context.Context, c Component) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalerCtx, errCh := irrecoverable.WithSignalerContext(runCtx)
	c.Start(signalerCtx)

	select {
	case <-ctx.Done():
		cancel()
		<-c.Done()
		return ctx.Err()
	case err := <-errCh:
		cancel()
		<-c.Done()
		return err
	case <-c.Done():
		return nil
	}
}
