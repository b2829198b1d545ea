package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/example/vkube-rbacsync/backend/internal/models"
	"github.com/example/vkube-rbacsync/backend/internal/permtypes"
	"github.com/example/vkube-rbacsync/backend/internal/rbacmap"
)

// Resultados terminais de uma execução.
const (
	OutcomeSucceeded       = "succeeded"
	OutcomePartiallyFailed = "partially_failed"
	OutcomeFailed          = "failed"
)

// ErrInProgress indica reconciliação já em andamento para o mesmo cluster.
var ErrInProgress = errors.New("reconciliação já em andamento para este cluster")

// ClusterClient é o que o reconciler exige do cluster remoto: listar,
// criar e consultar objetos de autorização, mais a lista de namespaces para
// expandir padrões na hora de aplicar.
type ClusterClient interface {
	ListObjects(ctx context.Context) (*rbacmap.Set, error)
	CreateObject(ctx context.Context, obj rbacmap.Object) error
	ObjectExists(ctx context.Context, obj rbacmap.Object) (bool, error)
	ListNamespaces(ctx context.Context) ([]string, error)
}

// ObjectError é uma entrada da lista de erros do SyncStatus.
type ObjectError struct {
	Object       string `json:"object,omitempty"`
	PermissionID uint   `json:"permissionId,omitempty"`
	Message      string `json:"message"`
}

// Reconciler executa o protocolo de sincronização por cluster:
// Loading → Diffing → Applying, sempre aditivo, nunca remove nem altera
// objetos existentes. Execuções para clusters distintos são independentes;
// para o mesmo cluster, no máximo uma por vez.
type Reconciler struct {
	Perms   PermissionStore
	Status  StatusStore
	Catalog *permtypes.Catalog
	Mapper  rbacmap.Mapper
	Timeout time.Duration

	mu       sync.Mutex
	inFlight map[uint]bool
}

// New monta o reconciler com o catálogo e as stores injetados.
func New(perms PermissionStore, status StatusStore, catalog *permtypes.Catalog, prefix string, timeout time.Duration) *Reconciler {
	return &Reconciler{
		Perms:    perms,
		Status:   status,
		Catalog:  catalog,
		Mapper:   rbacmap.Mapper{Prefix: prefix},
		Timeout:  timeout,
		inFlight: map[uint]bool{},
	}
}

func (r *Reconciler) tryLock(clusterID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[clusterID] {
		return false
	}
	r.inFlight[clusterID] = true
	return true
}

func (r *Reconciler) unlock(clusterID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, clusterID)
}

// Reconcile executa uma rodada completa para um cluster e grava o SyncStatus
// resultante (uma única escrita, substituição integral). Retorna ErrInProgress
// sem tocar em nada se já houver rodada em andamento para o cluster.
func (r *Reconciler) Reconcile(ctx context.Context, clusterID uint, client ClusterClient) (models.SyncStatus, error) {
	if !r.tryLock(clusterID) {
		return models.SyncStatus{}, ErrInProgress
	}
	defer r.unlock(clusterID)

	now := time.Now().UTC()
	status := models.SyncStatus{ClusterID: clusterID, LastAttemptAt: now}

	// Preserva o último sucesso conhecido quando esta tentativa falhar.
	if prev, err := r.Status.Get(clusterID); err == nil {
		status.LastSuccessAt = prev.LastSuccessAt
	}

	// Loading: as duas fontes de verdade. Qualquer falha aqui encerra a
	// rodada sem aplicar nada (nunca aplicar contra estado real desconhecido).
	perms, err := r.Perms.ListForCluster(clusterID)
	if err != nil {
		return r.finish(&status, nil, []ObjectError{{Message: "erro ao carregar permissões: " + err.Error()}}, true)
	}

	listCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	actual, err := client.ListObjects(listCtx)
	cancel()
	if err != nil {
		return r.finish(&status, nil, []ObjectError{{Message: "erro ao listar estado do cluster: " + err.Error()}}, true)
	}

	// Diffing: expande cada concessão e une tudo em um conjunto desejado.
	// Erros de mapeamento são permanentes: pulam a concessão e viram entrada
	// de erro, sem abortar a rodada.
	var errs []ObjectError
	desired := rbacmap.NewSet()
	for _, perm := range perms {
		def, err := r.Catalog.Lookup(perm.Tier)
		if err != nil {
			errs = append(errs, ObjectError{PermissionID: perm.ID, Message: err.Error()})
			continue
		}
		set, err := r.Mapper.Expand(perm, def)
		if err != nil {
			errs = append(errs, ObjectError{PermissionID: perm.ID, Message: err.Error()})
			continue
		}
		for _, obj := range set.Objects() {
			desired.Add(obj)
		}
	}

	toApply, patternErrs := r.expandPatterns(ctx, client, desired)
	errs = append(errs, patternErrs...)

	// Applying: cada objeto ausente é criado de forma independente; a falha
	// de um não bloqueia os demais e não há retry dentro da própria rodada.
	var applied []string
	keys := make([]string, 0, len(toApply))
	for key := range toApply {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if actual.Has(key) {
			continue
		}
		obj := toApply[key]
		createCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		err := client.CreateObject(createCtx, obj)
		cancel()
		if err != nil {
			errs = append(errs, ObjectError{Object: key, Message: err.Error()})
			continue
		}
		applied = append(applied, key)
	}

	return r.finish(&status, applied, errs, false)
}

// expandPatterns resolve descritores cujo namespace ainda é um padrão com '*'
// contra a lista real de namespaces do cluster. Padrões que não casam com
// nenhum namespace não produzem objetos (nada a aplicar).
func (r *Reconciler) expandPatterns(ctx context.Context, client ClusterClient, desired *rbacmap.Set) (map[string]rbacmap.Object, []ObjectError) {
	out := map[string]rbacmap.Object{}
	var pending []rbacmap.Object
	for _, obj := range desired.Objects() {
		if obj.HasNamespacePattern() {
			pending = append(pending, obj)
			continue
		}
		out[obj.Key()] = obj
	}
	if len(pending) == 0 {
		return out, nil
	}

	nsCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	namespaces, err := client.ListNamespaces(nsCtx)
	cancel()
	if err != nil {
		// Só os objetos com padrão ficam de fora; os literais seguem.
		errs := make([]ObjectError, 0, len(pending))
		for _, obj := range pending {
			errs = append(errs, ObjectError{Object: obj.Key(), Message: "erro ao expandir padrão de namespace: " + err.Error()})
		}
		return out, errs
	}
	for _, obj := range pending {
		for _, ns := range namespaces {
			if rbacmap.MatchNamespace(obj.Namespace, ns) {
				literal := obj.WithNamespace(ns)
				out[literal.Key()] = literal
			}
		}
	}
	return out, nil
}

// finish monta o SyncStatus terminal e o grava de uma vez só.
func (r *Reconciler) finish(status *models.SyncStatus, applied []string, errs []ObjectError, loadFailed bool) (models.SyncStatus, error) {
	switch {
	case loadFailed:
		status.Outcome = OutcomeFailed
	case len(errs) > 0:
		status.Outcome = OutcomePartiallyFailed
	default:
		status.Outcome = OutcomeSucceeded
	}
	status.Synced = status.Outcome == OutcomeSucceeded
	if status.Synced {
		at := status.LastAttemptAt
		status.LastSuccessAt = &at
	}
	if len(applied) > 0 {
		raw, _ := json.Marshal(applied)
		status.AppliedObjects = datatypes.JSON(raw)
	}
	if len(errs) > 0 {
		raw, _ := json.Marshal(errs)
		status.Errors = datatypes.JSON(raw)
	}
	if err := r.Status.Put(status); err != nil {
		return *status, err
	}
	return *status, nil
}
