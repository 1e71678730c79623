package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/BartekS5/flowmigrate/pkg/models"
)

// ContentFields strips engine- and store-added metadata fields, leaving only
// the record content that source and target must agree on.
func ContentFields(fields map[string]models.Value) map[string]models.Value {
	out := make(map[string]models.Value, len(fields))
	for k, v := range fields {
		if models.IsMetadataField(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Checksum computes the content checksum of a record: sha256 over the
// canonical form of its non-metadata fields. The same content always yields
// the same checksum regardless of field iteration order or which store the
// record came from.
func Checksum(fields map[string]models.Value) string {
	var sb strings.Builder
	models.MapValue(ContentFields(fields)).Canonical(&sb)
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
