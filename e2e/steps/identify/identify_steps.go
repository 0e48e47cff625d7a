package identify

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context the identify steps use.
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	StatusCode() int
	Body() []byte
	Unique(s string) string
	Remember(id int64)
	Remembered() int64
}

type contactView struct {
	Contact struct {
		PrimaryContactID    int64    `json:"primaryContatctId"`
		Emails              []string `json:"emails"`
		PhoneNumbers        []string `json:"phoneNumbers"`
		SecondaryContactIDs []int64  `json:"secondaryContactIds"`
	} `json:"contact"`
}

// RegisterSteps registers identify related step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &identifySteps{tc: tc}

	ctx.Step(`^I identify with email "([^"]*)" and phone "([^"]*)"$`, steps.identify)
	ctx.Step(`^I identified with email "([^"]*)" and phone "([^"]*)"$`, steps.identified)
	ctx.Step(`^I identify with numeric phone "([^"]*)"$`, steps.identifyNumericPhone)
	ctx.Step(`^I remember the primary id$`, steps.rememberPrimary)
	ctx.Step(`^I look up the first secondary contact$`, steps.lookUpFirstSecondary)

	ctx.Step(`^the primary id should be the remembered one$`, steps.primaryShouldBeRemembered)
	ctx.Step(`^the emails should be "([^"]*)"$`, steps.emailsShouldBe)
	ctx.Step(`^the phone numbers should be "([^"]*)"$`, steps.phonesShouldBe)
	ctx.Step(`^the cluster should have (\d+) secondary contacts?$`, steps.secondaryCountShouldBe)
}

type identifySteps struct {
	tc            TestContext
	lastSecondary int64
}

func (s *identifySteps) identify(email, phone string) error {
	return s.tc.POST("/identify", map[string]any{
		"email":       s.tc.Unique(email),
		"phoneNumber": s.tc.Unique(phone),
	})
}

func (s *identifySteps) identified(email, phone string) error {
	if err := s.identify(email, phone); err != nil {
		return err
	}
	if s.tc.StatusCode() != 200 {
		return fmt.Errorf("identify returned %d: %s", s.tc.StatusCode(), s.tc.Body())
	}
	view, err := s.view()
	if err != nil {
		return err
	}
	if n := len(view.Contact.SecondaryContactIDs); n > 0 {
		s.lastSecondary = view.Contact.SecondaryContactIDs[0]
	}
	return nil
}

func (s *identifySteps) identifyNumericPhone(phone string) error {
	return s.tc.POST("/identify", map[string]any{
		"phoneNumber": json.Number(s.tc.Unique(phone)),
	})
}

func (s *identifySteps) rememberPrimary() error {
	view, err := s.view()
	if err != nil {
		return err
	}
	s.tc.Remember(view.Contact.PrimaryContactID)
	return nil
}

func (s *identifySteps) lookUpFirstSecondary() error {
	if s.lastSecondary == 0 {
		return fmt.Errorf("no secondary contact seen in this scenario")
	}
	return s.tc.GET(fmt.Sprintf("/contacts/%d", s.lastSecondary))
}

func (s *identifySteps) primaryShouldBeRemembered() error {
	view, err := s.view()
	if err != nil {
		return err
	}
	if view.Contact.PrimaryContactID != s.tc.Remembered() {
		return fmt.Errorf("expected primary %d, got %d", s.tc.Remembered(), view.Contact.PrimaryContactID)
	}
	return nil
}

func (s *identifySteps) emailsShouldBe(list string) error {
	view, err := s.view()
	if err != nil {
		return err
	}
	return compareList("emails", s.split(list), view.Contact.Emails)
}

func (s *identifySteps) phonesShouldBe(list string) error {
	view, err := s.view()
	if err != nil {
		return err
	}
	return compareList("phoneNumbers", s.split(list), view.Contact.PhoneNumbers)
}

func (s *identifySteps) secondaryCountShouldBe(want int) error {
	view, err := s.view()
	if err != nil {
		return err
	}
	if got := len(view.Contact.SecondaryContactIDs); got != want {
		return fmt.Errorf("expected %d secondary contacts, got %d", want, got)
	}
	return nil
}

func (s *identifySteps) view() (*contactView, error) {
	var v contactView
	if err := json.Unmarshal(s.tc.Body(), &v); err != nil {
		return nil, fmt.Errorf("decode identify response: %w", err)
	}
	return &v, nil
}

func (s *identifySteps) split(list string) []string {
	parts := strings.Split(s.tc.Unique(list), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func compareList(field string, want, got []string) error {
	if !slices.Equal(want, got) {
		return fmt.Errorf("expected %s %v, got %v", field, want, got)
	}
	return nil
}
