package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reconciler/internal/contact/models"
)

// IdentifyRequest is the body of POST /identify. Either field may be null or
// missing.
type IdentifyRequest struct {
	Email       *string    `json:"email"`
	PhoneNumber FlexString `json:"phoneNumber"`
}

// Identifiers drops blank values.
func (r IdentifyRequest) Identifiers() models.Identifiers {
	var email string
	if r.Email != nil {
		email = *r.Email
	}
	return models.NewIdentifiers(email, r.PhoneNumber.Value)
}

// FlexString accepts a JSON string, number or null. Numbers are kept in
// plain decimal notation.
type FlexString struct {
	Value string
	Set   bool
}

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = FlexString{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString{Value: s, Set: true}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("phoneNumber must be a string or number")
	}
	*f = FlexString{Value: decimal(n), Set: true}
	return nil
}

// decimal renders a JSON number without exponent. Integer literals are kept
// verbatim so long digit strings do not lose precision.
func decimal(n json.Number) string {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		return lit
	}
	f, err := n.Float64()
	if err != nil {
		return lit
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
