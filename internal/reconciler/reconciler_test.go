package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/example/vkube-rbacsync/backend/internal/models"
	"github.com/example/vkube-rbacsync/backend/internal/permtypes"
	"github.com/example/vkube-rbacsync/backend/internal/rbacmap"
)

// =================================================================================
// FAKES
// =================================================================================

type fakePerms struct {
	perms []models.ClusterPermission
	err   error
}

func (f *fakePerms) ListForCluster(clusterID uint) ([]models.ClusterPermission, error) {
	return f.perms, f.err
}

type fakeStatus struct {
	mu     sync.Mutex
	byID   map[uint]models.SyncStatus
	writes int
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{byID: map[uint]models.SyncStatus{}}
}

func (f *fakeStatus) Get(clusterID uint) (models.SyncStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[clusterID]
	if !ok {
		return models.SyncStatus{}, ErrStatusNotFound
	}
	return s, nil
}

func (f *fakeStatus) Put(status *models.SyncStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[status.ClusterID] = *status
	f.writes++
	return nil
}

func (f *fakeStatus) Delete(clusterID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, clusterID)
	return nil
}

type fakeClient struct {
	mu         sync.Mutex
	actual     *rbacmap.Set
	namespaces []string
	listErr    error
	createErr  map[string]error
	created    []string

	// usados só no teste de concorrência
	listStarted chan struct{}
	listBlock   chan struct{}
}

func newFakeClient(namespaces ...string) *fakeClient {
	return &fakeClient{actual: rbacmap.NewSet(), namespaces: namespaces}
}

func (f *fakeClient) ListObjects(ctx context.Context) (*rbacmap.Set, error) {
	if f.listStarted != nil {
		close(f.listStarted)
		f.listStarted = nil
	}
	if f.listBlock != nil {
		<-f.listBlock
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := rbacmap.NewSet()
	for _, obj := range f.actual.Objects() {
		snapshot.Add(obj)
	}
	return snapshot, nil
}

func (f *fakeClient) CreateObject(ctx context.Context, obj rbacmap.Object) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[obj.Key()]; err != nil {
		return err
	}
	f.actual.Add(obj)
	f.created = append(f.created, obj.Key())
	return nil
}

func (f *fakeClient) ObjectExists(ctx context.Context, obj rbacmap.Object) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actual.Has(obj.Key()), nil
}

func (f *fakeClient) ListNamespaces(ctx context.Context) ([]string, error) {
	return f.namespaces, nil
}

func newTestReconciler(perms PermissionStore, status StatusStore) *Reconciler {
	return New(perms, status, permtypes.New(), "vkube", time.Second)
}

func decodeErrors(t *testing.T, status models.SyncStatus) []ObjectError {
	t.Helper()
	if len(status.Errors) == 0 {
		return nil
	}
	var errs []ObjectError
	require.NoError(t, json.Unmarshal(status.Errors, &errs))
	return errs
}

func decodeApplied(t *testing.T, status models.SyncStatus) []string {
	t.Helper()
	if len(status.AppliedObjects) == 0 {
		return nil
	}
	var applied []string
	require.NoError(t, json.Unmarshal(status.AppliedObjects, &applied))
	return applied
}

// =================================================================================
// TESTES
// =================================================================================

func TestReconcileCreatesAndIsIdempotent(t *testing.T) {
	// Cenário de referência: admin de cluster inteiro + dev em um namespace.
	perms := &fakePerms{perms: []models.ClusterPermission{
		{ID: 1, ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userA", Tier: permtypes.TierAdmin, AllNamespaces: true},
		{ID: 2, ClusterID: 1, SubjectKind: models.SubjectKindGroup, SubjectName: "groupB", Tier: permtypes.TierDev, Namespaces: datatypes.JSON([]byte(`["team-alpha"]`))},
	}}
	statusStore := newFakeStatus()
	client := newFakeClient("team-alpha")
	rec := newTestReconciler(perms, statusStore)

	status, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)

	assert.True(t, status.Synced)
	assert.Equal(t, OutcomeSucceeded, status.Outcome)
	assert.Len(t, decodeApplied(t, status), 6)
	assert.Empty(t, decodeErrors(t, status))
	require.NotNil(t, status.LastSuccessAt)

	// Segunda rodada imediata: nada novo a criar, continua synced.
	second, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)
	assert.True(t, second.Synced)
	assert.Empty(t, decodeApplied(t, second))
	assert.Len(t, client.created, 6)

	// Uma escrita de status por rodada, substituição integral.
	assert.Equal(t, 2, statusStore.writes)
}

func TestReconcileExpandsNamespacePatterns(t *testing.T) {
	perms := &fakePerms{perms: []models.ClusterPermission{
		{ID: 1, ClusterID: 1, SubjectKind: models.SubjectKindGroup, SubjectName: "groupB", Tier: permtypes.TierDev, Namespaces: datatypes.JSON([]byte(`["team-*"]`))},
	}}
	client := newFakeClient("team-a", "team-b", "outro")
	rec := newTestReconciler(perms, newFakeStatus())

	status, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)
	require.True(t, status.Synced)

	applied := decodeApplied(t, status)
	assert.Len(t, applied, 5) // Role+RoleBinding por namespace casado, mais o principal
	assert.Contains(t, applied, "Role/team-a/vkube-dev-group-groupb")
	assert.Contains(t, applied, "Role/team-b/vkube-dev-group-groupb")
	assert.Contains(t, applied, "RoleBinding/team-a/vkube-dev-group-groupb")
	assert.Contains(t, applied, "RoleBinding/team-b/vkube-dev-group-groupb")
	assert.NotContains(t, applied, "Role/outro/vkube-dev-group-groupb")
}

func TestReconcileSkipsUnknownTier(t *testing.T) {
	perms := &fakePerms{perms: []models.ClusterPermission{
		{ID: 1, ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userA", Tier: permtypes.TierAdmin, AllNamespaces: true},
		{ID: 2, ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userB", Tier: "superuser", AllNamespaces: true},
	}}
	client := newFakeClient()
	rec := newTestReconciler(perms, newFakeStatus())

	status, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)

	// A concessão ruim vira exatamente uma entrada de erro; as demais seguem.
	assert.False(t, status.Synced)
	assert.Equal(t, OutcomePartiallyFailed, status.Outcome)
	errs := decodeErrors(t, status)
	require.Len(t, errs, 1)
	assert.Equal(t, uint(2), errs[0].PermissionID)
	assert.Len(t, decodeApplied(t, status), 3)
}

func TestReconcileFailsClosedWhenListingFails(t *testing.T) {
	perms := &fakePerms{perms: []models.ClusterPermission{
		{ID: 1, ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userA", Tier: permtypes.TierAdmin, AllNamespaces: true},
	}}
	client := newFakeClient()
	client.listErr = errors.New("timeout de transporte")
	statusStore := newFakeStatus()
	rec := newTestReconciler(perms, statusStore)

	status, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)

	// Nada aplicado contra estado real desconhecido.
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.False(t, status.Synced)
	assert.Empty(t, client.created)
	assert.Empty(t, decodeApplied(t, status))
	require.Len(t, decodeErrors(t, status), 1)
	assert.Equal(t, 1, statusStore.writes)
}

func TestReconcileFailsClosedWhenPermissionLoadFails(t *testing.T) {
	perms := &fakePerms{err: errors.New("banco fora do ar")}
	client := newFakeClient()
	rec := newTestReconciler(perms, newFakeStatus())

	status, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.Empty(t, client.created)
}

func TestReconcileContainsPerObjectFailures(t *testing.T) {
	perms := &fakePerms{perms: []models.ClusterPermission{
		{ID: 1, ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userA", Tier: permtypes.TierAdmin, AllNamespaces: true},
	}}
	client := newFakeClient()
	client.createErr = map[string]error{
		"ClusterRoleBinding//vkube-admin-user-usera": errors.New("conexão recusada"),
	}
	rec := newTestReconciler(perms, newFakeStatus())

	status, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)

	// A falha de um objeto não bloqueia os outros e não há retry na rodada.
	assert.Equal(t, OutcomePartiallyFailed, status.Outcome)
	assert.Len(t, decodeApplied(t, status), 2)
	errs := decodeErrors(t, status)
	require.Len(t, errs, 1)
	assert.Equal(t, "ClusterRoleBinding//vkube-admin-user-usera", errs[0].Object)

	// A próxima rodada é o mecanismo de retry.
	client.createErr = nil
	second, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)
	assert.True(t, second.Synced)
	assert.Equal(t, []string{"ClusterRoleBinding//vkube-admin-user-usera"}, decodeApplied(t, second))
}

func TestReconcilePreservesLastSuccessAcrossFailure(t *testing.T) {
	perms := &fakePerms{perms: []models.ClusterPermission{
		{ID: 1, ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userA", Tier: permtypes.TierAdmin, AllNamespaces: true},
	}}
	client := newFakeClient()
	rec := newTestReconciler(perms, newFakeStatus())

	first, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)
	require.NotNil(t, first.LastSuccessAt)

	client.listErr = errors.New("transporte caiu")
	second, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)
	assert.False(t, second.Synced)
	require.NotNil(t, second.LastSuccessAt)
	assert.Equal(t, *first.LastSuccessAt, *second.LastSuccessAt)
}

func TestReconcileRejectsConcurrentRunForSameCluster(t *testing.T) {
	perms := &fakePerms{perms: []models.ClusterPermission{
		{ID: 1, ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userA", Tier: permtypes.TierAdmin, AllNamespaces: true},
	}}
	client := newFakeClient()
	started := make(chan struct{})
	block := make(chan struct{})
	client.listStarted = started
	client.listBlock = block
	rec := newTestReconciler(perms, newFakeStatus())

	done := make(chan models.SyncStatus, 1)
	go func() {
		status, _ := rec.Reconcile(context.Background(), 1, client)
		done <- status
	}()

	<-started

	// Segunda chamada para o mesmo cluster enquanto a primeira está em voo.
	_, err := rec.Reconcile(context.Background(), 1, client)
	assert.ErrorIs(t, err, ErrInProgress)

	close(block)
	status := <-done
	assert.True(t, status.Synced)

	// Depois de terminar, o cluster volta a aceitar reconciliação.
	_, err = rec.Reconcile(context.Background(), 1, client)
	assert.NoError(t, err)
}

func TestReconcileAllowsDistinctClustersInParallel(t *testing.T) {
	perms := &fakePerms{perms: []models.ClusterPermission{
		{ID: 1, ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userA", Tier: permtypes.TierAdmin, AllNamespaces: true},
	}}
	clientA := newFakeClient()
	started := make(chan struct{})
	block := make(chan struct{})
	clientA.listStarted = started
	clientA.listBlock = block
	rec := newTestReconciler(perms, newFakeStatus())

	go func() {
		_, _ = rec.Reconcile(context.Background(), 1, clientA)
	}()
	<-started

	// Cluster diferente não compartilha o lock.
	clientB := newFakeClient()
	status, err := rec.Reconcile(context.Background(), 2, clientB)
	require.NoError(t, err)
	assert.True(t, status.Synced)

	close(block)
}

func TestReconcileDeduplicatesCollapsingGrants(t *testing.T) {
	// Duas concessões idênticas colapsam nos mesmos descritores.
	perm := models.ClusterPermission{ClusterID: 1, SubjectKind: models.SubjectKindUser, SubjectName: "userA", Tier: permtypes.TierAdmin, AllNamespaces: true}
	a, b := perm, perm
	a.ID, b.ID = 1, 2
	perms := &fakePerms{perms: []models.ClusterPermission{a, b}}
	client := newFakeClient()
	rec := newTestReconciler(perms, newFakeStatus())

	status, err := rec.Reconcile(context.Background(), 1, client)
	require.NoError(t, err)
	assert.True(t, status.Synced)
	assert.Len(t, decodeApplied(t, status), 3)
}
