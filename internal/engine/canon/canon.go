// Package canon is the single chokepoint for canonicalizing a job spec into
// a deterministic byte string and hashing it into a deduplication key. Both
// single-job submission and sweep child construction must route through
// this package — deviating produces silent dedup failures.
package canon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
)

// Bytes canonicalizes a Spec into a deterministic byte string: stable field
// ordering and stable scalar formatting, so two specs differing only in
// field order or whitespace produce identical output.
func Bytes(spec domain.Spec) []byte {
	var b strings.Builder
	b.WriteString("strategy=")
	b.WriteString(spec.Strategy)
	b.WriteString("\nsymbol=")
	b.WriteString(spec.Symbol)
	b.WriteString("\nstart=")
	b.WriteString(spec.Start.UTC().Format("2006-01-02"))
	b.WriteString("\nend=")
	b.WriteString(spec.End.UTC().Format("2006-01-02"))
	b.WriteString("\ncapital=")
	b.WriteString(strconv.FormatFloat(spec.InitialCapital, 'g', -1, 64))
	b.WriteString("\nparams=")
	b.Write(canonicalizeParams(spec.Params))
	return []byte(b.String())
}

// SweepChildBytes canonicalizes the fields hashed for a sweep child's dedup
// key: the sweep id followed by the spec's own canonical bytes, i.e.
// (sweep_id, strategy_name, symbol, start, end, initial_capital,
// canonical_params).
func SweepChildBytes(sweepID int64, spec domain.Spec) []byte {
	var b strings.Builder
	b.WriteString("sweep=")
	b.WriteString(strconv.FormatInt(sweepID, 10))
	b.WriteString("\n")
	b.Write(Bytes(spec))
	return []byte(b.String())
}

// DedupKey computes a collision-resistant digest of canonical bytes using
// blake2b.
func DedupKey(canonical []byte) string {
	sum := blake2b.Sum256(canonical)
	return fmt.Sprintf("%x", sum)
}

// canonicalizeParams serializes an opaque string->scalar map with stable key
// ordering, so map iteration order never affects the digest.
func canonicalizeParams(params map[string]any) []byte {
	if len(params) == 0 {
		return []byte("{}")
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.Quote(k))
		b.WriteString(":")
		b.Write(canonicalizeScalar(params[k]))
	}
	b.WriteString("}")
	return []byte(b.String())
}

// canonicalizeScalar formats a single parameter value stably. Floats use
// Go's shortest round-trippable representation so "1.50" and "1.5" (which
// decode to the same float64) canonicalize identically.
func canonicalizeScalar(v any) []byte {
	switch val := v.(type) {
	case float64:
		return []byte(strconv.FormatFloat(val, 'g', -1, 64))
	case string:
		return []byte(strconv.Quote(val))
	case bool:
		return []byte(strconv.FormatBool(val))
	case nil:
		return []byte("null")
	default:
		// Fallback for nested structures: stable JSON marshal.
		out, err := json.Marshal(val)
		if err != nil {
			return []byte(fmt.Sprintf("%v", val))
		}
		return out
	}
}
