package rbacmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	rbacv1 "k8s.io/api/rbac/v1"

	"github.com/example/vkube-rbacsync/backend/internal/models"
	"github.com/example/vkube-rbacsync/backend/internal/permtypes"
)

// ErrInvalidScope indica escopo parcial exigido sem nenhum namespace informado.
var ErrInvalidScope = errors.New("escopo de namespaces inválido")

const rbacAPIGroup = "rbac.authorization.k8s.io"

// Mapper expande uma ClusterPermission no conjunto de objetos de autorização
// desejados. Função pura: sem efeitos colaterais, saída determinística — o
// mesmo input produz descritores byte a byte idênticos, que é o que torna o
// diff contra o estado real do cluster significativo.
type Mapper struct {
	// Prefix é o prefixo de produto usado em todos os nomes derivados.
	Prefix string
}

// PrincipalNamespace é o namespace onde os principals (ServiceAccounts) das
// concessões são materializados.
func (m Mapper) PrincipalNamespace() string {
	return m.Prefix + "-principals"
}

// Expand transforma uma concessão + definição de tier em descritores:
// um role (sintetizado, ou referenciado quando tier=custom), um principal e
// um binding por escopo.
func (m Mapper) Expand(perm models.ClusterPermission, def permtypes.Definition) (*Set, error) {
	clusterWide := def.RequireAllNamespaces || perm.AllNamespaces

	var namespaces []string
	if !clusterWide {
		if !def.AllowPartialNamespaces {
			// A store já deveria ter impedido; trata como escopo inválido.
			return nil, fmt.Errorf("%w: tier %q não aceita escopo parcial", ErrInvalidScope, perm.Tier)
		}
		if len(perm.Namespaces) > 0 {
			if err := json.Unmarshal(perm.Namespaces, &namespaces); err != nil {
				return nil, fmt.Errorf("%w: lista de namespaces ilegível: %v", ErrInvalidScope, err)
			}
		}
		if len(namespaces) == 0 {
			return nil, fmt.Errorf("%w: nenhum namespace informado para o tier %q", ErrInvalidScope, perm.Tier)
		}
	}

	base := m.baseName(perm)
	set := NewSet()

	// Role: sintetizado a partir da definição, exceto para custom, que apenas
	// referencia uma ClusterRole autorada fora deste engine.
	roleRef := rbacv1.RoleRef{APIGroup: rbacAPIGroup, Kind: KindClusterRole, Name: perm.CustomRoleName}
	if perm.Tier != permtypes.TierCustom {
		rules := []rbacv1.PolicyRule{{
			APIGroups: append([]string{}, def.APIGroups...),
			Resources: append([]string{}, def.Resources...),
			Verbs:     append([]string{}, def.Verbs...),
		}}
		if clusterWide {
			set.Add(Object{Kind: KindClusterRole, Name: base, Rules: rules})
			roleRef = rbacv1.RoleRef{APIGroup: rbacAPIGroup, Kind: KindClusterRole, Name: base}
		} else {
			for _, ns := range namespaces {
				set.Add(Object{Kind: KindRole, Name: base, Namespace: ns, Rules: rules})
			}
			roleRef = rbacv1.RoleRef{APIGroup: rbacAPIGroup, Kind: KindRole, Name: base}
		}
	}

	// Principal: identidade de serviço que acompanha a concessão.
	principal := Object{Kind: KindServiceAccount, Name: base, Namespace: m.PrincipalNamespace()}
	set.Add(principal)

	subjects := []rbacv1.Subject{
		m.subjectFor(perm),
		{Kind: KindServiceAccount, Name: principal.Name, Namespace: principal.Namespace},
	}

	if clusterWide {
		set.Add(Object{Kind: KindClusterRoleBinding, Name: base, RoleRef: &roleRef, Subjects: subjects})
	} else {
		for _, ns := range namespaces {
			set.Add(Object{Kind: KindRoleBinding, Name: base, Namespace: ns, RoleRef: &roleRef, Subjects: subjects})
		}
	}

	return set, nil
}

func (m Mapper) subjectFor(perm models.ClusterPermission) rbacv1.Subject {
	kind := "User"
	if perm.SubjectKind == models.SubjectKindGroup {
		kind = "Group"
	}
	return rbacv1.Subject{Kind: kind, APIGroup: rbacAPIGroup, Name: perm.SubjectName}
}

// baseName deriva o nome determinístico {prefix}-{tier}-{kind}-{sujeito}.
func (m Mapper) baseName(perm models.ClusterPermission) string {
	return fmt.Sprintf("%s-%s-%s-%s", m.Prefix, perm.Tier, perm.SubjectKind, slug(perm.SubjectName))
}

// slug normaliza o nome do sujeito para um nome DNS-1123 válido.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
