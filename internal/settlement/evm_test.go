package settlement

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmbiguousSendClassification(t *testing.T) {
	// Transport failures leave the broadcast outcome unknown.
	assert.True(t, ambiguousSend(context.DeadlineExceeded))
	assert.True(t, ambiguousSend(context.Canceled))
	assert.True(t, ambiguousSend(fmt.Errorf("settlement: send tx: %w", context.DeadlineExceeded)))
	assert.True(t, ambiguousSend(&net.OpError{Op: "write", Err: errors.New("broken pipe")}))

	// Node-level rejections are definitive.
	assert.False(t, ambiguousSend(errors.New("nonce too low")))
	assert.False(t, ambiguousSend(errors.New("insufficient funds for gas * price + value")))
}
