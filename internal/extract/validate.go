package extract

import (
	"log/slog"
	"strings"

	"github.com/FranksOps/roost/internal/metrics"
	"github.com/FranksOps/roost/internal/record"
)

// Draft is the raw field set from structured extraction, before repair.
// Any field may be empty.
type Draft struct {
	Name        string
	Address     string
	Price       string
	Description string
}

// Validator checks a draft record field by field and repairs gaps with the
// heuristic extractor. It has no error path: the worst case is a record
// where everything except the name is the not-found sentinel.
type Validator struct {
	extractor *Extractor
	logger    *slog.Logger
}

// NewValidator creates a Validator around the given extractor.
func NewValidator(extractor *Extractor, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{extractor: extractor, logger: logger}
}

// Repair fills the name, address, price and description of a record, in that
// order. A draft value survives if non-empty after trimming; otherwise the
// heuristics run over rawContent; otherwise the field gets its sentinel.
// The name's sentinel is seedName - the hotel name as originally known - so a
// name is never "Not found" when any candidate name existed. The caller owns
// ID, URL, Source and CollectedAt.
func (v *Validator) Repair(draft Draft, seedName, rawContent string) record.HotelRecord {
	var rec record.HotelRecord

	rec.Name = v.repairName(draft.Name, seedName, rawContent)
	rec.Address = v.repairField(FieldAddress, draft.Address, rawContent)
	rec.Price = v.repairField(FieldPrice, draft.Price, rawContent)

	rec.Description = v.repairField(FieldDescription, draft.Description, rawContent)
	if rec.Description.OK() {
		rec.Description = record.Found(TidyDescription(rec.Description.Value))
	}

	return rec
}

func (v *Validator) repairName(draftName, seedName, rawContent string) string {
	if name := strings.TrimSpace(draftName); name != "" {
		return name
	}

	if f := v.extractor.Extract(FieldTitle, rawContent); f.OK() {
		v.logger.Warn("name missing, recovered from page title", "name", f.Value)
		metrics.FieldsRepairedTotal.WithLabelValues("name").Inc()
		return f.Value
	}

	if seedName = strings.TrimSpace(seedName); seedName != "" {
		v.logger.Warn("name missing, using originally supplied name", "name", seedName)
		return seedName
	}

	// No candidate name was ever known. Callers normally derive a seed name
	// from the URL before getting here.
	return "Unknown Hotel"
}

func (v *Validator) repairField(field, draftValue, rawContent string) record.Field {
	if val := strings.TrimSpace(draftValue); val != "" {
		return record.Found(val)
	}

	if f := v.extractor.Extract(field, rawContent); f.OK() {
		v.logger.Warn("field missing, recovered from raw content", "field", field, "value", f.Value)
		metrics.FieldsRepairedTotal.WithLabelValues(field).Inc()
		return f
	}

	v.logger.Warn("field unrecoverable, using sentinel", "field", field)
	metrics.FieldsMissingTotal.WithLabelValues(field).Inc()
	return record.NotFound()
}
