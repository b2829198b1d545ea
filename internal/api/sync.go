package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"sigs.k8s.io/yaml"

	"github.com/example/vkube-rbacsync/backend/internal/config"
	"github.com/example/vkube-rbacsync/backend/internal/crypto"
	"github.com/example/vkube-rbacsync/backend/internal/db"
	"github.com/example/vkube-rbacsync/backend/internal/k8s"
	"github.com/example/vkube-rbacsync/backend/internal/models"
	"github.com/example/vkube-rbacsync/backend/internal/permtypes"
	"github.com/example/vkube-rbacsync/backend/internal/rbacmap"
	"github.com/example/vkube-rbacsync/backend/internal/reconciler"
)

// =================================================================================
// SYNC HANDLERS
// =================================================================================

func syncHandler(cfg *config.Config, rec *reconciler.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		cluster, ok := clusterFromRequest(c, "id")
		if !ok {
			return
		}

		client, ok := authzClientFor(c, cfg, cluster, rec)
		if !ok {
			return
		}

		status, err := rec.Reconcile(c.Request.Context(), cluster.ID, client)
		if err != nil {
			if errors.Is(err, reconciler.ErrInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": "reconciliação já em andamento"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao gravar status de sync"})
			return
		}

		c.JSON(http.StatusOK, status)
	}
}

func getSyncStatusHandler(cfg *config.Config, rec *reconciler.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		cluster, ok := clusterFromRequest(c, "id")
		if !ok {
			return
		}

		status, err := rec.Status.Get(cluster.ID)
		if err != nil {
			if errors.Is(err, reconciler.ErrStatusNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "cluster ainda não sincronizado"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao consultar status de sync"})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func listPermissionTypesHandler(cat *permtypes.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, cat.List())
	}
}

// desiredObjectsHandler renderiza em YAML o conjunto de objetos que a
// reconciliação materializaria, para inspeção pelo operador. Padrões de
// namespace aparecem sem expandir (a expansão só acontece ao aplicar).
func desiredObjectsHandler(cfg *config.Config, cat *permtypes.Catalog, rec *reconciler.Reconciler) gin.HandlerFunc {
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

		desired := rbacmap.NewSet()
		var skipped []gin.H
		for _, perm := range perms {
			def, err := cat.Lookup(perm.Tier)
			if err != nil {
				skipped = append(skipped, gin.H{"permissionId": perm.ID, "error": err.Error()})
				continue
			}
			set, err := rec.Mapper.Expand(perm, def)
			if err != nil {
				skipped = append(skipped, gin.H{"permissionId": perm.ID, "error": err.Error()})
				continue
			}
			for _, obj := range set.Objects() {
				desired.Add(obj)
			}
		}

		objects := desired.Objects()
		sort.Slice(objects, func(i, j int) bool { return objects[i].Key() < objects[j].Key() })

		y, err := yaml.Marshal(objects)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao converter para yaml"})
			return
		}

		resp := gin.H{"yaml": string(y), "skipped": skipped}

		// ?live=true consulta o cluster e marca o que ainda está faltando.
		if c.Query("live") == "true" {
			client, ok := authzClientFor(c, cfg, cluster, rec)
			if !ok {
				return
			}
			var missing []string
			for _, obj := range objects {
				if obj.HasNamespacePattern() {
					continue
				}
				exists, err := client.ObjectExists(c.Request.Context(), obj)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao consultar o cluster: " + err.Error()})
					return
				}
				if !exists {
					missing = append(missing, obj.Key())
				}
			}
			resp["missing"] = missing
		}

		c.JSON(http.StatusOK, resp)
	}
}

// authzClientFor decifra o kubeconfig do cluster e monta o cliente de
// autorização. Em caso de erro a resposta JSON já foi escrita.
func authzClientFor(c *gin.Context, cfg *config.Config, cluster *models.Cluster, rec *reconciler.Reconciler) (*k8s.AuthzClient, bool) {
	kubeconfig, err := crypto.DecryptAES(cfg.AESKey, cluster.EncryptedKubeconfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao decifrar kubeconfig"})
		return nil, false
	}

	clientset, err := k8s.NewClient(kubeconfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "erro ao criar client Kubernetes"})
		return nil, false
	}

	return k8s.NewAuthzClient(clientset, rec.Mapper.PrincipalNamespace()), true
}
