package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ngonendi/edgestore"
	"github.com/ngonendi/edgestore/client"
	"github.com/ngonendi/edgestore/internal/cache"
	"github.com/ngonendi/edgestore/internal/domain"
	"github.com/pkg/errors"
)

// --- mocks ---

type fakeBackend struct {
	entries     map[string][]byte
	tags        map[string][]string
	invalidated []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		entries: map[string][]byte{},
		tags:    map[string][]string{},
	}
}

func (f *fakeBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, found := f.entries[key]
	if !found {
		return nil, cache.ErrMiss
	}
	return value, nil
}

func (f *fakeBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	f.entries[key] = value
	f.tags[key] = tags
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.entries, key)
		delete(f.tags, key)
	}
	return nil
}

func (f *fakeBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	f.invalidated = append(f.invalidated, tags...)
	for _, tag := range tags {
		for key, keyTags := range f.tags {
			for _, kt := range keyTags {
				if kt == tag {
					delete(f.entries, key)
					delete(f.tags, key)
					break
				}
			}
		}
	}
	return nil
}

type mockController struct {
	developers map[string]*edgestore.Developer

	loadCalls     [][]string
	created       []*edgestore.Developer
	updated       []*edgestore.Developer
	deleted       []string
	statusID      string
	statusValue   edgestore.Status
	statusCalls   int
	statusErr     error
	remoteStatus  edgestore.Status
	createdDevIDs []string
}

func newMockController(devs ...*edgestore.Developer) *mockController {
	m := &mockController{developers: map[string]*edgestore.Developer{}}
	for _, d := range devs {
		m.developers[d.Email] = d
		if d.DeveloperID != "" {
			m.developers[d.DeveloperID] = d
		}
	}
	return m
}

func (m *mockController) Load(ctx context.Context, id string) (*edgestore.Developer, error) {
	if dev, found := m.developers[id]; found {
		copied := *dev
		return &copied, nil
	}
	return nil, &client.APIError{Status: 404, Code: "developer.service.DeveloperIdDoesNotExist", Message: "not found"}
}

func (m *mockController) LoadMultiple(ctx context.Context, ids []string) (map[string]*edgestore.Developer, error) {
	m.loadCalls = append(m.loadCalls, ids)
	result := map[string]*edgestore.Developer{}
	if ids == nil {
		for _, dev := range m.developers {
			copied := *dev
			result[copied.Email] = &copied
		}
		return result, nil
	}
	for _, id := range ids {
		if dev, found := m.developers[id]; found {
			copied := *dev
			result[copied.Email] = &copied
		}
	}
	return result, nil
}

func (m *mockController) Create(ctx context.Context, dev *edgestore.Developer) error {
	m.created = append(m.created, dev)
	dev.DeveloperID = "generated-" + dev.Email
	if m.remoteStatus != "" {
		dev.Status = m.remoteStatus
	}
	m.createdDevIDs = append(m.createdDevIDs, dev.DeveloperID)
	return nil
}

func (m *mockController) Update(ctx context.Context, dev *edgestore.Developer) error {
	m.updated = append(m.updated, dev)
	if m.remoteStatus != "" {
		dev.Status = m.remoteStatus
	}
	return nil
}

func (m *mockController) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockController) SetStatus(ctx context.Context, id string, status edgestore.Status) error {
	m.statusCalls++
	m.statusID = id
	m.statusValue = status
	return m.statusErr
}

func newTestStorage(ctl *mockController) (*DeveloperStorage, *fakeBackend) {
	backend := newFakeBackend()
	tt := cache.New(backend, 15*time.Minute)
	return NewDeveloperStorage(ctl, tt), backend
}

func alice() *edgestore.Developer {
	return &edgestore.Developer{
		Email:       "alice@example.com",
		DeveloperID: "11111111-2222-3333-4444-555555555555",
		FirstName:   "Alice",
		Status:      edgestore.StatusActive,
	}
}

func bob() *edgestore.Developer {
	return &edgestore.Developer{
		Email:       "bob@example.com",
		DeveloperID: "66666666-7777-8888-9999-000000000000",
		FirstName:   "Bob",
		Status:      edgestore.StatusActive,
	}
}

// --- tests ---

func TestLoadMultipleMixedIDsKeepsInputOrder(t *testing.T) {
	ctl := newMockController(alice(), bob())
	s, _ := newTestStorage(ctl)

	ids := []string{"alice@example.com", bob().DeveloperID, "missing@example.com"}
	result, err := s.LoadMultiple(context.Background(), ids)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	keys := result.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 resolved ids, got %d (%v)", len(keys), keys)
	}
	if keys[0] != "alice@example.com" || keys[1] != bob().DeveloperID {
		t.Fatalf("result not in input order: %v", keys)
	}

	byAlias, _ := result.Get(bob().DeveloperID)
	if byAlias.Email != "bob@example.com" {
		t.Fatalf("alias resolved to wrong record: %v", byAlias.Email)
	}
	if _, found := result.Get("missing@example.com"); found {
		t.Fatalf("unresolvable id should be dropped")
	}
}

func TestLoadMultipleNormalizesEmails(t *testing.T) {
	ctl := newMockController(alice())
	s, _ := newTestStorage(ctl)

	result, err := s.LoadMultiple(context.Background(), []string{"  ALICE@Example.COM "})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, found := result.Get("alice@example.com"); !found {
		t.Fatalf("expected normalized key, got %v", result.Keys())
	}
}

func TestLoadMultipleNilLoadsAllSorted(t *testing.T) {
	ctl := newMockController(bob(), alice())
	s, _ := newTestStorage(ctl)

	result, err := s.LoadMultiple(context.Background(), nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	keys := result.Keys()
	if len(keys) != 2 || keys[0] != "alice@example.com" || keys[1] != "bob@example.com" {
		t.Fatalf("expected sorted emails, got %v", keys)
	}
}

func TestLoadNotFound(t *testing.T) {
	ctl := newMockController()
	s, _ := newTestStorage(ctl)

	_, err := s.Load(context.Background(), "nobody@example.com")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestLoadByDeveloperIDHitsCacheSecondTime(t *testing.T) {
	ctl := newMockController(alice())
	s, _ := newTestStorage(ctl)

	id := alice().DeveloperID
	if _, err := s.Load(context.Background(), id); err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	remoteCalls := len(ctl.loadCalls)

	if _, err := s.Load(context.Background(), id); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if len(ctl.loadCalls) != remoteCalls {
		t.Fatalf("second load by developer id should not hit the remote API")
	}
}

func TestSaveReappliesCapturedStatus(t *testing.T) {
	ctl := newMockController(alice())
	ctl.remoteStatus = edgestore.StatusActive
	s, _ := newTestStorage(ctl)

	dev := alice()
	dev.Status = edgestore.StatusInactive
	if err := s.Save(context.Background(), dev); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if ctl.statusCalls != 1 {
		t.Fatalf("expected one status call, got %d", ctl.statusCalls)
	}
	if ctl.statusID != dev.Email || ctl.statusValue != edgestore.StatusInactive {
		t.Fatalf("status call got %q/%q", ctl.statusID, ctl.statusValue)
	}
	if dev.Status != edgestore.StatusInactive {
		t.Fatalf("save clobbered the intended status: %q", dev.Status)
	}
}

func TestSaveEmptyStatusFallsBackToRemote(t *testing.T) {
	ctl := newMockController()
	ctl.remoteStatus = edgestore.StatusActive
	s, _ := newTestStorage(ctl)

	dev := &edgestore.Developer{Email: "carol@example.com"}
	if err := s.Save(context.Background(), dev); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if ctl.statusValue != edgestore.StatusActive {
		t.Fatalf("expected remote-assigned status, got %q", ctl.statusValue)
	}
}

func TestSaveStatusFailureReturnsStorageError(t *testing.T) {
	ctl := newMockController(alice())
	ctl.statusErr = &client.APIError{Status: 500, Code: "developer.service.Error", Message: "boom"}
	s, _ := newTestStorage(ctl)

	dev := alice()
	err := s.Save(context.Background(), dev)
	if err == nil {
		t.Fatalf("expected save to fail")
	}

	var se domain.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %T", err)
	}
	if se.Code != "developer.service.Error" || se.Message != "boom" {
		t.Fatalf("error lost remote detail: %+v", se)
	}
}

func TestSaveClearsOriginalEmailAfterUpdate(t *testing.T) {
	ctl := newMockController(alice())
	s, _ := newTestStorage(ctl)

	dev := alice()
	dev.SetEmail("alice.new@example.com")
	if dev.OriginalEmail == "" {
		t.Fatalf("rename should record the previous address")
	}

	if err := s.Save(context.Background(), dev); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if dev.OriginalEmail != "" {
		t.Fatalf("shadow should be cleared once the update is through")
	}
}

func TestPersistentCacheTags(t *testing.T) {
	ctl := newMockController()
	s, _ := newTestStorage(ctl)

	owner := int64(42)
	dev := &edgestore.Developer{
		Email:       "rené@example.com",
		DeveloperID: "dev-1",
		OwnerID:     &owner,
	}

	tags := s.PersistentCacheTags(dev)
	want := map[string]bool{
		"developer":                              false,
		"developer:values":                       false,
		"developer:ren%C3%A9@example.com":        false,
		"developer:ren%C3%A9@example.com:values": false,
		"developer:dev-1":                        false,
		"developer:dev-1:values":                 false,
		"user:42":                                false,
	}
	for _, tag := range tags {
		if _, expected := want[tag]; !expected {
			t.Fatalf("unexpected tag %q", tag)
		}
		want[tag] = true
	}
	for tag, seen := range want {
		if !seen {
			t.Fatalf("missing tag %q (got %v)", tag, tags)
		}
	}
}

func TestSetPersistentCacheWritesBothKeyings(t *testing.T) {
	ctl := newMockController()
	s, backend := newTestStorage(ctl)

	dev := alice()
	if err := s.SetPersistentCache(context.Background(), []*edgestore.Developer{dev}); err != nil {
		t.Fatalf("cache write failed: %v", err)
	}

	byEmail := s.Key(dev.Email)
	byID := s.Key(dev.DeveloperID)
	if _, found := backend.entries[byEmail]; !found {
		t.Fatalf("missing email-keyed entry")
	}
	if _, found := backend.entries[byID]; !found {
		t.Fatalf("missing developer-id-keyed entry")
	}
	if string(backend.entries[byEmail]) != string(backend.entries[byID]) {
		t.Fatalf("the two keyings should hold the same record")
	}
	if len(backend.tags[byEmail]) != len(backend.tags[byID]) {
		t.Fatalf("the two keyings should carry the same tags")
	}
}

func TestResetCacheWithIDsSweepsValuesTagClass(t *testing.T) {
	ctl := newMockController(alice(), bob())
	s, backend := newTestStorage(ctl)

	if _, err := s.LoadMultiple(context.Background(), []string{"alice@example.com", "bob@example.com"}); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(backend.entries) == 0 {
		t.Fatalf("expected warm cache")
	}

	if err := s.ResetCache(context.Background(), []string{"alice@example.com"}); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	swept := false
	for _, tag := range backend.invalidated {
		if tag == "developer:values" {
			swept = true
		}
	}
	if !swept {
		t.Fatalf("expected developer:values invalidation, got %v", backend.invalidated)
	}
	// Every value entry carries developer:values, so even bob and the
	// developer-id aliases are gone now.
	if len(backend.entries) != 0 {
		t.Fatalf("expected empty persistent tier, found %d entries", len(backend.entries))
	}
}

func TestResetCacheNilInvalidatesKind(t *testing.T) {
	ctl := newMockController(alice())
	s, backend := newTestStorage(ctl)

	if _, err := s.Load(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := s.ResetCache(context.Background(), nil); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	if len(backend.entries) != 0 {
		t.Fatalf("kind-wide reset left entries behind")
	}
	for _, tag := range backend.invalidated {
		if tag == "developer:values" {
			t.Fatalf("nil reset must not use the coarse values sweep")
		}
	}
}

func TestDeleteEvictsAliasKeyings(t *testing.T) {
	ctl := newMockController(alice())
	s, backend := newTestStorage(ctl)

	if _, err := s.Load(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := s.Delete(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if len(ctl.deleted) != 1 || ctl.deleted[0] != "alice@example.com" {
		t.Fatalf("remote delete got %v", ctl.deleted)
	}
	if _, found := backend.entries[s.Key(alice().DeveloperID)]; found {
		t.Fatalf("developer-id keying survived delete")
	}
	if _, found := backend.entries[s.Key("alice@example.com")]; found {
		t.Fatalf("email keying survived delete")
	}
}
