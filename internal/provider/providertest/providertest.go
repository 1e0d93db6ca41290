// Package providertest provides shared conformance tests for provider.Provider
// implementations. Call RunAll from a test function to verify a provider
// satisfies the full behavioral contract.
package providertest

import (
	"testing"

	"github.com/dwsmith1983/ledgerlens/internal/provider"
)

// RunAll runs the complete provider conformance suite as subtests.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("PublishReadBack", func(t *testing.T) { TestPublishReadBack(t, prov) })
	t.Run("PublishReplaces", func(t *testing.T) { TestPublishReplaces(t, prov) })
	t.Run("PublishRejectsMismatch", func(t *testing.T) { TestPublishRejectsMismatch(t, prov) })
	t.Run("ReadUnknownTable", func(t *testing.T) { TestReadUnknownTable(t, prov) })
	t.Run("RunPutGet", func(t *testing.T) { TestRunPutGet(t, prov) })
	t.Run("RunList", func(t *testing.T) { TestRunList(t, prov) })
	t.Run("Locking", func(t *testing.T) { TestLocking(t, prov) })
	t.Run("LockExpiry", func(t *testing.T) { TestLockExpiry(t, prov) })
}
