package rbacmap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/example/vkube-rbacsync/backend/internal/models"
	"github.com/example/vkube-rbacsync/backend/internal/permtypes"
)

func testMapper() Mapper {
	return Mapper{Prefix: "vkube"}
}

func lookupDef(t *testing.T, tier string) permtypes.Definition {
	t.Helper()
	def, err := permtypes.New().Lookup(tier)
	require.NoError(t, err)
	return def
}

func TestExpandAdminClusterWide(t *testing.T) {
	perm := models.ClusterPermission{
		ID:            1,
		ClusterID:     10,
		SubjectKind:   models.SubjectKindUser,
		SubjectName:   "userA",
		Tier:          permtypes.TierAdmin,
		AllNamespaces: true,
	}

	set, err := testMapper().Expand(perm, lookupDef(t, permtypes.TierAdmin))
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	assert.True(t, set.Has("ClusterRole//vkube-admin-user-usera"))
	assert.True(t, set.Has("ClusterRoleBinding//vkube-admin-user-usera"))
	assert.True(t, set.Has("ServiceAccount/vkube-principals/vkube-admin-user-usera"))
}

func TestExpandRequireAllNamespacesIgnoresStoredList(t *testing.T) {
	// Mesmo com lista de namespaces gravada (não deveria acontecer), um tier
	// que exige todos os namespaces sai com escopo de cluster.
	perm := models.ClusterPermission{
		SubjectKind: models.SubjectKindUser,
		SubjectName: "userA",
		Tier:        permtypes.TierAdmin,
		Namespaces:  datatypes.JSON([]byte(`["team-a","team-b"]`)),
	}

	set, err := testMapper().Expand(perm, lookupDef(t, permtypes.TierAdmin))
	require.NoError(t, err)

	for _, obj := range set.Objects() {
		assert.NotEqual(t, KindRole, obj.Kind)
		assert.NotEqual(t, KindRoleBinding, obj.Kind)
	}
}

func TestExpandPartialNamespaces(t *testing.T) {
	perm := models.ClusterPermission{
		SubjectKind: models.SubjectKindGroup,
		SubjectName: "groupB",
		Tier:        permtypes.TierDev,
		Namespaces:  datatypes.JSON([]byte(`["team-a","team-b"]`)),
	}

	set, err := testMapper().Expand(perm, lookupDef(t, permtypes.TierDev))
	require.NoError(t, err)

	// Um Role e um RoleBinding por namespace, mais o principal.
	assert.Equal(t, 5, set.Len())
	assert.True(t, set.Has("Role/team-a/vkube-dev-group-groupb"))
	assert.True(t, set.Has("Role/team-b/vkube-dev-group-groupb"))
	assert.True(t, set.Has("RoleBinding/team-a/vkube-dev-group-groupb"))
	assert.True(t, set.Has("RoleBinding/team-b/vkube-dev-group-groupb"))
	assert.True(t, set.Has("ServiceAccount/vkube-principals/vkube-dev-group-groupb"))
}

func TestExpandKeepsWildcardPattern(t *testing.T) {
	// Padrões com '*' não são expandidos no mapeamento; ficam como padrão
	// para a expansão na hora de aplicar.
	perm := models.ClusterPermission{
		SubjectKind: models.SubjectKindGroup,
		SubjectName: "groupB",
		Tier:        permtypes.TierDev,
		Namespaces:  datatypes.JSON([]byte(`["team-*"]`)),
	}

	set, err := testMapper().Expand(perm, lookupDef(t, permtypes.TierDev))
	require.NoError(t, err)
	assert.True(t, set.Has("Role/team-*/vkube-dev-group-groupb"))
	assert.True(t, set.Has("RoleBinding/team-*/vkube-dev-group-groupb"))
}

func TestExpandCustomReferencesRole(t *testing.T) {
	perm := models.ClusterPermission{
		SubjectKind:    models.SubjectKindUser,
		SubjectName:    "userA",
		Tier:           permtypes.TierCustom,
		AllNamespaces:  true,
		CustomRoleName: "meu-role-especial",
	}

	set, err := testMapper().Expand(perm, lookupDef(t, permtypes.TierCustom))
	require.NoError(t, err)

	// Nenhum role sintetizado; só binding + principal.
	assert.Equal(t, 2, set.Len())
	var found bool
	for _, obj := range set.Objects() {
		if obj.Kind == KindClusterRoleBinding {
			found = true
			require.NotNil(t, obj.RoleRef)
			assert.Equal(t, "meu-role-especial", obj.RoleRef.Name)
			assert.Equal(t, KindClusterRole, obj.RoleRef.Kind)
		}
		assert.NotEqual(t, KindClusterRole, obj.Kind)
		assert.NotEqual(t, KindRole, obj.Kind)
	}
	assert.True(t, found)
}

func TestExpandInvalidScope(t *testing.T) {
	tests := []struct {
		name string
		perm models.ClusterPermission
	}{
		{
			name: "escopo parcial sem namespaces",
			perm: models.ClusterPermission{
				SubjectKind: models.SubjectKindUser,
				SubjectName: "userA",
				Tier:        permtypes.TierDev,
			},
		},
		{
			name: "lista vazia",
			perm: models.ClusterPermission{
				SubjectKind: models.SubjectKindUser,
				SubjectName: "userA",
				Tier:        permtypes.TierDev,
				Namespaces:  datatypes.JSON([]byte(`[]`)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testMapper().Expand(tt.perm, lookupDef(t, permtypes.TierDev))
			assert.ErrorIs(t, err, ErrInvalidScope)
		})
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	perm := models.ClusterPermission{
		SubjectKind: models.SubjectKindGroup,
		SubjectName: "Time de Plataforma",
		Tier:        permtypes.TierReadonly,
		Namespaces:  datatypes.JSON([]byte(`["plataforma","infra"]`)),
	}
	def := lookupDef(t, permtypes.TierReadonly)

	a, err := testMapper().Expand(perm, def)
	require.NoError(t, err)
	b, err := testMapper().Expand(perm, def)
	require.NoError(t, err)

	require.Equal(t, a.Len(), b.Len())
	for _, obj := range a.Objects() {
		require.True(t, b.Has(obj.Key()))
	}

	// Descritores byte a byte idênticos entre execuções.
	for _, objA := range a.Objects() {
		for _, objB := range b.Objects() {
			if objA.Key() != objB.Key() {
				continue
			}
			rawA, err := json.Marshal(objA)
			require.NoError(t, err)
			rawB, err := json.Marshal(objB)
			require.NoError(t, err)
			assert.Equal(t, rawA, rawB)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"userA", "usera"},
		{"Time de Plataforma", "time-de-plataforma"},
		{"dev@example.com", "dev-example-com"},
		{"--edge--", "edge"},
	}
	for _, tt := range tests {
		if got := slug(tt.in); got != tt.out {
			t.Errorf("slug(%q) = %q, esperado %q", tt.in, got, tt.out)
		}
	}
}

func TestMatchNamespace(t *testing.T) {
	tests := []struct {
		pattern, name string
		expected      bool
	}{
		{"team-*", "team-a", true},
		{"team-*", "team-", true},
		{"team-*", "other", false},
		{"*", "qualquer", true},
		{"exato", "exato", true},
		{"exato", "exato2", false},
		{"*-prod", "app-prod", true},
		{"*-prod", "app-dev", false},
	}
	for _, tt := range tests {
		if got := MatchNamespace(tt.pattern, tt.name); got != tt.expected {
			t.Errorf("MatchNamespace(%q, %q) = %v, esperado %v", tt.pattern, tt.name, got, tt.expected)
		}
	}
}
