package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/example/vkube-rbacsync/backend/internal/auth"
	"github.com/example/vkube-rbacsync/backend/internal/config"
	"github.com/example/vkube-rbacsync/backend/internal/db"
	"github.com/example/vkube-rbacsync/backend/internal/models"
	"github.com/example/vkube-rbacsync/backend/internal/permtypes"
)

// permissionRequest é o payload de criação/atualização de uma concessão.
// Exatamente um entre user e group deve vir preenchido.
type permissionRequest struct {
	User           string   `json:"user"`
	Group          string   `json:"group"`
	Tier           string   `json:"tier" binding:"required"`
	AllNamespaces  bool     `json:"allNamespaces"`
	Namespaces     []string `json:"namespaces"`
	CustomRoleName string   `json:"customRoleName"`
}

// buildPermission valida o payload contra o catálogo e monta o modelo.
// Esta é a fronteira de escrita: o reconciler confia que tudo que passou
// por aqui é estruturalmente válido e não revalida.
func buildPermission(clusterID uint, req permissionRequest, cat *permtypes.Catalog) (*models.ClusterPermission, error) {
	if (req.User == "") == (req.Group == "") {
		return nil, errors.New("informe exatamente um entre user e group")
	}

	def, err := cat.Lookup(req.Tier)
	if err != nil {
		return nil, err
	}

	if def.RequireAllNamespaces && !req.AllNamespaces {
		return nil, fmt.Errorf("o tier %q exige escopo em todos os namespaces", req.Tier)
	}
	if !req.AllNamespaces {
		if !def.AllowPartialNamespaces {
			return nil, fmt.Errorf("o tier %q não aceita escopo parcial de namespaces", req.Tier)
		}
		if len(req.Namespaces) == 0 {
			return nil, errors.New("informe ao menos um namespace ou use allNamespaces")
		}
		for _, ns := range req.Namespaces {
			if ns == "" {
				return nil, errors.New("padrão de namespace vazio")
			}
		}
	}

	if req.Tier == permtypes.TierCustom && req.CustomRoleName == "" {
		return nil, errors.New("o tier custom exige customRoleName")
	}

	perm := &models.ClusterPermission{
		ClusterID:     clusterID,
		SubjectKind:   models.SubjectKindUser,
		SubjectName:   req.User,
		Tier:          req.Tier,
		AllNamespaces: req.AllNamespaces,
	}
	if req.Group != "" {
		perm.SubjectKind = models.SubjectKindGroup
		perm.SubjectName = req.Group
	}
	if req.Tier == permtypes.TierCustom {
		perm.CustomRoleName = req.CustomRoleName
	}
	if !req.AllNamespaces {
		raw, err := json.Marshal(req.Namespaces)
		if err != nil {
			return nil, err
		}
		perm.Namespaces = datatypes.JSON(raw)
	}
	return perm, nil
}

func listPermissionsHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		cluster, ok := clusterFromRequest(c, "id")
		if !ok {
			return
		}

		var perms []models.ClusterPermission
		if err := db.DB.Where("cluster_id = ?", cluster.ID).Order("id").Find(&perms).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao listar permissões"})
			return
		}
		c.JSON(http.StatusOK, perms)
	}
}

func createPermissionHandler(cfg *config.Config, cat *permtypes.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		cluster, ok := clusterFromRequest(c, "id")
		if !ok {
			return
		}

		var req permissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido"})
			return
		}

		perm, err := buildPermission(cluster.ID, req, cat)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claimsVal, _ := c.Get("user")
		perm.CreatedBy = claimsVal.(*auth.Claims).Username

		if err := db.DB.Create(perm).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao salvar permissão"})
			return
		}
		c.JSON(http.StatusCreated, perm)
	}
}

func updatePermissionHandler(cfg *config.Config, cat *permtypes.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		perm, ok := permissionFromRequest(c)
		if !ok {
			return
		}

		var req permissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload inválido"})
			return
		}

		updated, err := buildPermission(perm.ClusterID, req, cat)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updated.ID = perm.ID
		updated.CreatedBy = perm.CreatedBy
		updated.CreatedAt = perm.CreatedAt

		if err := db.DB.Save(updated).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao atualizar permissão"})
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func deletePermissionHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		perm, ok := permissionFromRequest(c)
		if !ok {
			return
		}

		if err := db.DB.Delete(perm).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao remover permissão"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// permissionFromRequest carrega a permissão da rota e confere que o chamador
// é dono do cluster dela.
func permissionFromRequest(c *gin.Context) (*models.ClusterPermission, bool) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id inválido"})
		return nil, false
	}

	var perm models.ClusterPermission
	if err := db.DB.First(&perm, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "permissão não encontrada"})
		return nil, false
	}

	claimsVal, _ := c.Get("user")
	claims := claimsVal.(*auth.Claims)

	var cluster models.Cluster
	if err := db.DB.Where("id = ? AND owner_username = ?", perm.ClusterID, claims.Username).First(&cluster).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "permissão não encontrada"})
		return nil, false
	}

	return &perm, true
}
