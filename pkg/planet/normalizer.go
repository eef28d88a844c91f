package planet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Sternrassler/swapi-ingest/pkg/client"
	"github.com/Sternrassler/swapi-ingest/pkg/pagination"
	"github.com/rs/zerolog"
)

// ErrSkip signals an item whose detail document carries no property set.
// It is expected and not counted as a failure.
var ErrSkip = errors.New("item has no detail properties")

// ErrMissingField is wrapped by NormalizationError when a property is absent.
var ErrMissingField = errors.New("missing field")

// NormalizationError is a per-item shape mismatch.
type NormalizationError struct {
	URL   string
	Field string
	Err   error
}

// Error implements the error interface.
func (e *NormalizationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalize %s: field %q: %v", e.URL, e.Field, e.Err)
	}
	return fmt.Sprintf("normalize %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// Normalizer resolves item references into Planets.
type Normalizer struct {
	fetcher pagination.Fetcher
	logger  zerolog.Logger
}

// NewNormalizer creates a normalizer that fetches detail documents through fetcher.
func NewNormalizer(fetcher pagination.Fetcher, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Normalize fetches ref's detail document and maps it onto a Planet.
// It returns ErrSkip when the document has no property set, a
// *NormalizationError when a field is missing, and fetch errors unchanged.
func (n *Normalizer) Normalize(ctx context.Context, ref pagination.ItemRef) (*Planet, error) {
	if ref.URL == "" {
		return nil, &NormalizationError{URL: ref.Name, Field: "url", Err: ErrMissingField}
	}

	doc, err := n.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return nil, err
	}

	props, ok := Properties(doc)
	if !ok {
		n.logger.Warn().Str("url", ref.URL).Str("name", ref.Name).Msg("No properties in detail document, skipping")
		return nil, ErrSkip
	}

	p, err := FromProperties(props)
	if err != nil {
		var ne *NormalizationError
		if errors.As(err, &ne) {
			ne.URL = ref.URL
		}
		return nil, err
	}
	return p, nil
}

// Properties extracts the property set from a detail document. Both
// {"result": {"properties": {...}}} and a top-level "properties" are accepted.
func Properties(doc client.Document) (map[string]any, bool) {
	if result, ok := doc["result"].(map[string]any); ok {
		if props, ok := result["properties"].(map[string]any); ok {
			return props, true
		}
		return nil, false
	}
	props, ok := doc["properties"].(map[string]any)
	return props, ok
}

// FromProperties maps a property set onto a Planet. Every mapped property
// must be present; unknown keys are ignored.
func FromProperties(props map[string]any) (*Planet, error) {
	p := &Planet{}
	for _, f := range Fields {
		v, ok := props[f.Property]
		if !ok {
			return nil, &NormalizationError{Field: f.Property, Err: ErrMissingField}
		}
		f.Set(p, Text(v))
	}
	if p.Name == "" {
		return nil, &NormalizationError{Field: "name", Err: errors.New("empty natural key")}
	}
	return p, nil
}

// Text renders any decoded JSON value as text. Null becomes the empty
// string; objects and arrays keep their JSON form.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
