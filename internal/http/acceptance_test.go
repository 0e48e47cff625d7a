package httpapi_test

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconciler/internal/contact/handler"
	"reconciler/internal/contact/service"
	"reconciler/internal/contact/store"
	httpapi "reconciler/internal/http"
	"reconciler/internal/platform/logger"
	platformmetrics "reconciler/internal/platform/metrics"
	"reconciler/pkg/testutil"
)

type identifyBody struct {
	Email       any `json:"email"`
	PhoneNumber any `json:"phoneNumber"`
}

type acceptance struct {
	router http.Handler
	mem    *store.InMemory
}

func newAcceptance(t *testing.T) acceptance {
	t.Helper()
	mem := store.NewInMemory()
	svc, err := service.New(mem, service.WithLogger(logger.Discard()))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Metrics:  platformmetrics.NewWithRegisterer(reg),
		Gatherer: reg,
	}, handler.New(svc, mem, logger.Discard()))
	return acceptance{router: router, mem: mem}
}

func emptyStore(t *testing.T) acceptance {
	t.Helper()
	return testutil.Fixture(t, "an empty contact store behind the HTTP router", newAcceptance)
}

func identify(t *testing.T, router http.Handler, email, phone any) *handler.IdentifyResponse {
	t.Helper()
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/identify", identifyBody{Email: email, PhoneNumber: phone}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	return testutil.UnmarshalResponse[handler.IdentifyResponse](t, rr)
}

func TestIdentifyFlow(t *testing.T) {
	testutil.Given(t, "a customer who ordered with one email and phone", func(t *testing.T) {
		app := emptyStore(t)
		router, mem := app.router, app.mem
		first := identify(t, router, "lorraine@hillvalley.edu", "123456")
		require.Equal(t, int64(1), first.Contact.PrimaryContactID)

		testutil.When(t, "they order again with a new email and the same phone", func(t *testing.T) {
			got := identify(t, router, "mcfly@hillvalley.edu", "123456")

			testutil.Then(t, "the new email is linked as a secondary", func(t *testing.T) {
				assert.Equal(t, int64(1), got.Contact.PrimaryContactID)
				assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, got.Contact.Emails)
				assert.Equal(t, []int64{2}, got.Contact.SecondaryContactIDs)
			})
			testutil.And(t, "the phone is listed once", func(t *testing.T) {
				assert.Equal(t, []string{"123456"}, got.Contact.PhoneNumbers)
			})
		})

		testutil.When(t, "they identify with the phone alone", func(t *testing.T) {
			before := mem.Count()
			got := identify(t, router, nil, 123456)

			testutil.Then(t, "the same cluster is returned and nothing is written", func(t *testing.T) {
				assert.Equal(t, int64(1), got.Contact.PrimaryContactID)
				assert.Equal(t, before, mem.Count())
			})
		})

		testutil.When(t, "the cluster is fetched by a secondary id", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodGet, "/contacts/2", ""))

			testutil.Then(t, "the primary's view is returned", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				got := testutil.UnmarshalResponse[handler.IdentifyResponse](t, rr)
				assert.Equal(t, int64(1), got.Contact.PrimaryContactID)
			})
		})
	})

	testutil.Given(t, "two separate primaries", func(t *testing.T) {
		router := emptyStore(t).router
		identify(t, router, "george@hillvalley.edu", "919191")
		identify(t, router, "biffsucks@hillvalley.edu", "717171")

		testutil.When(t, "a request links them", func(t *testing.T) {
			got := identify(t, router, "george@hillvalley.edu", "717171")

			testutil.Then(t, "the older primary survives and the other is demoted", func(t *testing.T) {
				assert.Equal(t, int64(1), got.Contact.PrimaryContactID)
				assert.Equal(t, []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"}, got.Contact.Emails)
				assert.Equal(t, []string{"919191", "717171"}, got.Contact.PhoneNumbers)
				assert.Contains(t, got.Contact.SecondaryContactIDs, int64(2))
			})
		})
	})

	testutil.Given(t, "a malformed request", func(t *testing.T) {
		router := emptyStore(t).router

		testutil.When(t, "it is posted", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/identify", `{"email":`))

			testutil.Then(t, "it is rejected as a bad request", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
			})
		})
	})
}
