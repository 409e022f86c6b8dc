package webhooks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	body := []byte(`{"id":"evt"}`)
	sig := SignHMAC("k", body)
	require.Len(t, sig, 64)
	require.True(t, VerifyHMAC("k", body, sig))
	require.False(t, VerifyHMAC("other", body, sig))
	require.False(t, VerifyHMAC("k", body, "not-hex"))
}
