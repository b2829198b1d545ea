package reconciler

import (
	"errors"

	"gorm.io/gorm"

	"github.com/example/vkube-rbacsync/backend/internal/models"
)

// ErrStatusNotFound indica que o cluster ainda não tem reconciliação registrada.
var ErrStatusNotFound = errors.New("status de sincronização não encontrado")

// PermissionStore é a leitura que o reconciler faz da store de permissões.
type PermissionStore interface {
	ListForCluster(clusterID uint) ([]models.ClusterPermission, error)
}

// StatusStore persiste o resultado de cada reconciliação: uma linha por
// cluster, substituída por inteiro a cada execução.
type StatusStore interface {
	Get(clusterID uint) (models.SyncStatus, error)
	Put(status *models.SyncStatus) error
	Delete(clusterID uint) error
}

// GormPermissionStore lê concessões do PostgreSQL.
type GormPermissionStore struct {
	DB *gorm.DB
}

func (s GormPermissionStore) ListForCluster(clusterID uint) ([]models.ClusterPermission, error) {
	var perms []models.ClusterPermission
	err := s.DB.Where("cluster_id = ?", clusterID).Order("id").Find(&perms).Error
	return perms, err
}

// GormStatusStore persiste SyncStatus no PostgreSQL.
type GormStatusStore struct {
	DB *gorm.DB
}

func (s GormStatusStore) Get(clusterID uint) (models.SyncStatus, error) {
	var status models.SyncStatus
	err := s.DB.Where("cluster_id = ?", clusterID).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SyncStatus{}, ErrStatusNotFound
	}
	return status, err
}

func (s GormStatusStore) Put(status *models.SyncStatus) error {
	var existing models.SyncStatus
	err := s.DB.Where("cluster_id = ?", status.ClusterID).First(&existing).Error
	if err == nil {
		status.ID = existing.ID
		return s.DB.Save(status).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.DB.Create(status).Error
	}
	return err
}

func (s GormStatusStore) Delete(clusterID uint) error {
	return s.DB.Where("cluster_id = ?", clusterID).Delete(&models.SyncStatus{}).Error
}
