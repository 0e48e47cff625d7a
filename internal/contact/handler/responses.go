package handler

import "reconciler/internal/contact/models"

// IdentifyResponse wraps the consolidated contact. The primaryContatctId
// spelling is part of the published wire format.
type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}

type ContactResponse struct {
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type UsageResponse struct {
	Message  string            `json:"message"`
	Endpoint string            `json:"endpoint"`
	Example  map[string]string `json:"example"`
}

func toIdentifyResponse(c *models.ConsolidatedContact) IdentifyResponse {
	secondaryIDs := make([]int64, 0, len(c.SecondaryIDs))
	for _, id := range c.SecondaryIDs {
		secondaryIDs = append(secondaryIDs, int64(id))
	}
	emails := c.Emails
	if emails == nil {
		emails = []string{}
	}
	phones := c.PhoneNumbers
	if phones == nil {
		phones = []string{}
	}
	return IdentifyResponse{Contact: ContactResponse{
		PrimaryContactID:    int64(c.PrimaryID),
		Emails:              emails,
		PhoneNumbers:        phones,
		SecondaryContactIDs: secondaryIDs,
	}}
}
