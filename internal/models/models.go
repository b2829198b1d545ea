package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tipos de sujeito aceitos em uma permissão.
const (
	SubjectKindUser  = "user"
	SubjectKindGroup = "group"
)

// User representa um usuário autenticado via LDAP com informações de RBAC básico.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"uniqueIndex;size:128" json:"username"`
	DisplayName string    `gorm:"size:256" json:"displayName"`
	Role        string    `gorm:"size:32" json:"role"` // admin, viewer
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Cluster representa um cluster Kubernetes com kubeconfig criptografado.
type Cluster struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"size:128;not null" json:"name"`
	Description         string    `gorm:"size:512" json:"description"`
	OwnerUsername       string    `gorm:"size:128;index" json:"ownerUsername"`
	EncryptedKubeconfig []byte    `gorm:"type:bytea" json:"-"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// ClusterPermission representa uma concessão de acesso: um sujeito (usuário OU
// grupo, nunca ambos), um cluster, um tier de privilégio e o escopo de
// namespaces. A validação estrutural acontece na API de escrita; o reconciler
// confia que linhas persistidas são válidas.
type ClusterPermission struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ClusterID      uint           `gorm:"not null;index" json:"clusterId"`
	SubjectKind    string         `gorm:"size:16;not null" json:"subjectKind"` // user, group
	SubjectName    string         `gorm:"size:256;not null" json:"subjectName"`
	Tier           string         `gorm:"size:32;not null;index" json:"tier"`
	AllNamespaces  bool           `json:"allNamespaces"`
	Namespaces     datatypes.JSON `gorm:"type:text" json:"namespaces,omitempty"` // lista JSON de padrões de namespace
	CustomRoleName string         `gorm:"size:256" json:"customRoleName,omitempty"`
	CreatedBy      string         `gorm:"size:128" json:"createdBy,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// SyncStatus guarda o resultado da última reconciliação de um cluster.
// Uma linha por cluster, sobrescrita (nunca acumulada) a cada tentativa.
type SyncStatus struct {
	ID             uint           `gorm:"primaryKey" json:"-"`
	ClusterID      uint           `gorm:"uniqueIndex;not null" json:"clusterId"`
	Synced         bool           `json:"synced"`
	Outcome        string         `gorm:"size:32" json:"outcome"` // succeeded, partially_failed, failed
	LastAttemptAt  time.Time      `json:"lastAttemptAt"`
	LastSuccessAt  *time.Time     `json:"lastSuccessAt,omitempty"`
	AppliedObjects datatypes.JSON `gorm:"type:text" json:"appliedObjects,omitempty"` // objetos criados na última tentativa
	Errors         datatypes.JSON `gorm:"type:text" json:"errors,omitempty"`         // erros por objeto/concessão
}
