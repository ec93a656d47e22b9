package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foodloop/foodloop/internal/models"
	"github.com/foodloop/foodloop/internal/services"
	"github.com/foodloop/foodloop/pkg/apperrors"
	jwtutil "github.com/foodloop/foodloop/pkg/jwt"
	"github.com/foodloop/foodloop/pkg/logger"
	"github.com/foodloop/foodloop/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testJWTSecret = "handler-test-secret"

func notFoundErr(msg string) error { return apperrors.E(apperrors.KindNotFound, msg) }
func conflictErr(msg string) error { return apperrors.E(apperrors.KindConflict, msg) }

func TestMain(m *testing.M) {
	logger.InitLogger()
	os.Exit(m.Run())
}

// memDonationStore is a minimal in-memory DonationStore for routing
// tests. Transitions take the same precondition-checked path the Mongo
// repository does, just under a mutex.
type memDonationStore struct {
	mu        sync.Mutex
	donations map[primitive.ObjectID]*models.Donation
}

func newMemDonationStore() *memDonationStore {
	return &memDonationStore{donations: make(map[primitive.ObjectID]*models.Donation)}
}

func (m *memDonationStore) Insert(ctx context.Context, donation *models.Donation) (*models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *donation
	d.ID = primitive.NewObjectID()
	d.CreatedAt = time.Now()
	m.donations[d.ID] = &d
	out := d
	return &out, nil
}

func (m *memDonationStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, notFoundErr("donation not found")
	}
	out := *d
	return &out, nil
}

func (m *memDonationStore) Claim(ctx context.Context, id, recipientID primitive.ObjectID, now time.Time) (*models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, notFoundErr("donation not found")
	}
	if d.Status != models.StatusAvailable || !now.Before(d.ExpiryAt) {
		return nil, conflictErr("donation is no longer available")
	}
	rid := recipientID
	d.Status = models.StatusClaimed
	d.RecipientID = &rid
	d.ClaimedAt = &now
	out := *d
	return &out, nil
}

func (m *memDonationStore) Complete(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, notFoundErr("donation not found")
	}
	if d.Status != models.StatusClaimed {
		return nil, conflictErr("only claimed donations can be completed")
	}
	d.Status = models.StatusCompleted
	d.CompletedAt = &now
	out := *d
	return &out, nil
}

func (m *memDonationStore) Cancel(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, notFoundErr("donation not found")
	}
	if d.Status != models.StatusAvailable && d.Status != models.StatusClaimed {
		return nil, conflictErr("donation can no longer be cancelled")
	}
	d.Status = models.StatusCancelled
	out := *d
	return &out, nil
}

func (m *memDonationStore) Expire(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donations[id]
	if !ok || d.IsTerminal() || now.Before(d.ExpiryAt) {
		return false, nil
	}
	d.Status = models.StatusExpired
	return true, nil
}

func (m *memDonationStore) Release(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	return false, nil
}

func (m *memDonationStore) FindExpiredCandidates(ctx context.Context, now time.Time) ([]models.Donation, error) {
	return nil, nil
}

func (m *memDonationStore) FindStaleClaims(ctx context.Context, now time.Time) ([]models.Donation, error) {
	return nil, nil
}

func (m *memDonationStore) List(ctx context.Context, filter models.DonationFilter) ([]models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Donation
	for _, d := range m.donations {
		if d.Status != models.StatusAvailable || !filter.Now.Before(d.ExpiryAt) {
			continue
		}
		if filter.Category != "" && d.FoodCategory != filter.Category {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(d.Title), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (m *memDonationStore) CountActiveClaims(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, d := range m.donations {
		if d.Status == models.StatusClaimed && d.RecipientID != nil && *d.RecipientID == recipientID {
			count++
		}
	}
	return count, nil
}

func (m *memDonationStore) Stats(ctx context.Context, userID primitive.ObjectID, role string) (*models.DonationStats, error) {
	return &models.DonationStats{Role: role}, nil
}

type memRatingStore struct {
	mu      sync.Mutex
	ratings []*models.Rating
}

func (m *memRatingStore) Insert(ctx context.Context, rating *models.Rating) (*models.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.ratings {
		if r.DonationID == rating.DonationID && r.RaterID == rating.RaterID {
			return nil, conflictErr("you have already rated this donation")
		}
	}
	r := *rating
	r.ID = primitive.NewObjectID()
	r.CreatedAt = time.Now()
	m.ratings = append(m.ratings, &r)
	out := r
	return &out, nil
}

func (m *memRatingStore) Exists(ctx context.Context, donationID, raterID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.ratings {
		if r.DonationID == donationID && r.RaterID == raterID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRatingStore) AverageForUser(ctx context.Context, userID primitive.ObjectID) (*float64, error) {
	return nil, nil
}

func (m *memRatingStore) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Rating, error) {
	return nil, nil
}

type memUserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[primitive.ObjectID]*models.User)}
}

func (m *memUserStore) add(user *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	m.users[u.ID] = &u
	out := u
	return &out
}

func (m *memUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	return m.add(user), nil
}

func (m *memUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, notFoundErr("user not found")
}

func (m *memUserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFoundErr("user not found")
	}
	out := *u
	return &out, nil
}

func (m *memUserStore) FindByVerifyToken(ctx context.Context, token string) (*models.User, error) {
	return nil, notFoundErr("user not found")
}

func (m *memUserStore) Update(ctx context.Context, id primitive.ObjectID, fields map[string]interface{}) (*models.User, error) {
	return m.FindByID(ctx, id)
}

func (m *memUserStore) UpdateLastActive(ctx context.Context, id primitive.ObjectID) error {
	return nil
}

func (m *memUserStore) FindRecipientsByLocation(ctx context.Context, location string, limit int) ([]models.User, error) {
	return nil, nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, userID primitive.ObjectID, notifType, title, message string, donationID *primitive.ObjectID) error {
	return nil
}

type donationAPI struct {
	router    *mux.Router
	donations *memDonationStore
	users     *memUserStore
	donor     *models.User
	recipient *models.User
}

// newDonationAPI builds the donation routes exactly as the server wires
// them, backed by in-memory stores, with one donor and one recipient.
func newDonationAPI(t *testing.T) *donationAPI {
	t.Helper()

	api := &donationAPI{
		donations: newMemDonationStore(),
		users:     newMemUserStore(),
	}
	api.donor = api.users.add(&models.User{
		Username:   "wanjiku",
		Email:      "wanjiku@example.com",
		Role:       models.RoleDonor,
		Location:   "westlands",
		IsVerified: true,
		IsActive:   true,
	})
	api.recipient = api.users.add(&models.User{
		Username:   "otieno",
		Email:      "otieno@example.com",
		Role:       models.RoleRecipient,
		Location:   "kilimani",
		IsVerified: true,
		IsActive:   true,
	})

	donationService := services.NewDonationService(api.donations, api.users, noopNotifier{}, nil)
	ratingService := services.NewRatingService(&memRatingStore{}, api.donations, noopNotifier{})
	handler := NewDonationHandler(donationService, ratingService)

	router := mux.NewRouter()
	donationRoutes := router.PathPrefix("/donations").Subrouter()
	donationRoutes.Use(middleware.AuthMiddleware(testJWTSecret))
	donationRoutes.HandleFunc("", handler.SearchDonationsHandler).Methods("GET")
	donationRoutes.HandleFunc("/{id}", handler.GetDonationHandler).Methods("GET")
	donationRoutes.HandleFunc("/{id}/claim", handler.ClaimDonationHandler).Methods("POST")
	donationRoutes.HandleFunc("/{id}/complete", handler.CompleteDonationHandler).Methods("POST")
	donationRoutes.HandleFunc("/{id}/cancel", handler.CancelDonationHandler).Methods("POST")
	donationRoutes.HandleFunc("/{id}/rate", handler.RateDonationHandler).Methods("POST")

	donorRoutes := router.PathPrefix("/donations").Subrouter()
	donorRoutes.Use(middleware.AuthMiddleware(testJWTSecret))
	donorRoutes.Use(middleware.RequireRole(models.RoleDonor))
	donorRoutes.HandleFunc("", handler.CreateDonationHandler).Methods("POST")

	api.router = router
	return api
}

func (api *donationAPI) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := jwtutil.GenerateToken(user.ID.Hex(), user.Email, user.Role, testJWTSecret, 1)
	require.NoError(t, err)
	return token
}

func (api *donationAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func createPayload() map[string]interface{} {
	return map[string]interface{}{
		"title":         "Fresh mangoes",
		"description":   "A crate of ripe mangoes",
		"food_category": "fruits",
		"quantity":      3,
		"location":      "westlands",
		"expiry_at":     time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	}
}

func TestCreateDonationEndpoint(t *testing.T) {
	api := newDonationAPI(t)

	rec := api.do(t, "POST", "/donations", api.token(t, api.donor), createPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Donation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, models.StatusAvailable, created.Status)
	assert.Equal(t, api.donor.ID, created.DonorID)
}

func TestCreateDonationEndpointAuthz(t *testing.T) {
	api := newDonationAPI(t)

	// No token at all.
	rec := api.do(t, "POST", "/donations", "", createPayload())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A recipient token fails the role gate before the handler runs.
	rec = api.do(t, "POST", "/donations", api.token(t, api.recipient), createPayload())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateDonationEndpointValidation(t *testing.T) {
	api := newDonationAPI(t)

	payload := createPayload()
	payload["expiry_at"] = time.Now().Add(-time.Hour).Format(time.RFC3339)
	rec := api.do(t, "POST", "/donations", api.token(t, api.donor), payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_input", body["kind"])
}

func TestClaimEndpoint(t *testing.T) {
	api := newDonationAPI(t)

	rec := api.do(t, "POST", "/donations", api.token(t, api.donor), createPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Donation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	claimPath := fmt.Sprintf("/donations/%s/claim", created.ID.Hex())
	rec = api.do(t, "POST", claimPath, api.token(t, api.recipient), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var claimed models.Donation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
	assert.Equal(t, models.StatusClaimed, claimed.Status)
	require.NotNil(t, claimed.RecipientID)
	assert.Equal(t, api.recipient.ID, *claimed.RecipientID)

	// A second claim races onto a claimed donation.
	loser := api.users.add(&models.User{
		Username:   "late",
		Email:      "late@example.com",
		Role:       models.RoleRecipient,
		Location:   "karen",
		IsVerified: true,
		IsActive:   true,
	})
	rec = api.do(t, "POST", claimPath, api.token(t, loser), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClaimEndpointSelfClaim(t *testing.T) {
	api := newDonationAPI(t)

	rec := api.do(t, "POST", "/donations", api.token(t, api.donor), createPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Donation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Flip the donor's stored role so the role gate passes and the
	// self-claim check is what fires.
	api.users.mu.Lock()
	api.users.users[api.donor.ID].Role = models.RoleRecipient
	api.users.mu.Unlock()

	rec = api.do(t, "POST", fmt.Sprintf("/donations/%s/claim", created.ID.Hex()), api.token(t, api.donor), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "self_claim", body["kind"])
}

func TestDonationEndpointErrors(t *testing.T) {
	api := newDonationAPI(t)
	token := api.token(t, api.recipient)

	rec := api.do(t, "GET", "/donations/not-a-hex-id", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, "GET", "/donations/"+primitive.NewObjectID().Hex(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, "POST", "/donations/"+primitive.NewObjectID().Hex()+"/claim", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteAndRateEndpoints(t *testing.T) {
	api := newDonationAPI(t)

	rec := api.do(t, "POST", "/donations", api.token(t, api.donor), createPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Donation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.ID.Hex()

	rec = api.do(t, "POST", "/donations/"+id+"/claim", api.token(t, api.recipient), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A stranger cannot complete the exchange.
	stranger := api.users.add(&models.User{
		Username:   "stranger",
		Email:      "stranger@example.com",
		Role:       models.RoleRecipient,
		Location:   "karen",
		IsVerified: true,
		IsActive:   true,
	})
	rec = api.do(t, "POST", "/donations/"+id+"/complete", api.token(t, stranger), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, "POST", "/donations/"+id+"/complete", api.token(t, api.recipient), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ratePayload := map[string]interface{}{"score": 5, "comment": "great"}
	rec = api.do(t, "POST", "/donations/"+id+"/rate", api.token(t, api.recipient), ratePayload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rating models.Rating
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rating))
	assert.Equal(t, api.donor.ID, rating.RateeID)

	// Rating the same direction twice conflicts.
	rec = api.do(t, "POST", "/donations/"+id+"/rate", api.token(t, api.recipient), ratePayload)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSearchDonationsEndpoint(t *testing.T) {
	api := newDonationAPI(t)
	donorToken := api.token(t, api.donor)

	rec := api.do(t, "POST", "/donations", donorToken, createPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	bread := createPayload()
	bread["title"] = "Sourdough loaves"
	bread["food_category"] = "grains"
	rec = api.do(t, "POST", "/donations", donorToken, bread)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, "GET", "/donations?category=grains", api.token(t, api.recipient), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []models.Donation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Sourdough loaves", results[0].Title)

	// Empty result sets serialize as [], not null.
	rec = api.do(t, "GET", "/donations?category=dairy", api.token(t, api.recipient), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}
