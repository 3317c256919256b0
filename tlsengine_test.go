package transport

import (
	"errors"
	"testing"

	tls "github.com/refraction-networking/utls"
	"github.com/stretchr/testify/assert"
)

type fakePinner struct {
	err error
}

func (p *fakePinner) Check(serverName string, certSHA256 [][32]byte) error { return p.err }

func TestUTLSEngineVerifyDelegatesToPinner(t *testing.T) {
	e := NewUTLSEngine(nil)
	assert.NoError(t, e.Verify("example.com", TLSSession{}))

	pinErr := errors.New("pin mismatch")
	e2 := NewUTLSEngine(&fakePinner{err: pinErr})
	assert.ErrorIs(t, e2.Verify("example.com", TLSSession{}), pinErr)
}

func TestNewUTLSEngineDefaultsToGolangHello(t *testing.T) {
	e := NewUTLSEngine(nil)
	assert.Equal(t, tls.HelloGolang, e.HelloID)
}
