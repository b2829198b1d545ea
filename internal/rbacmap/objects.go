package rbacmap

import (
	"fmt"
	"strings"

	rbacv1 "k8s.io/api/rbac/v1"
)

// Kinds dos objetos de autorização que o engine materializa no cluster.
const (
	KindClusterRole        = "ClusterRole"
	KindRole               = "Role"
	KindClusterRoleBinding = "ClusterRoleBinding"
	KindRoleBinding        = "RoleBinding"
	KindServiceAccount     = "ServiceAccount"
)

// Object é um descritor de objeto de autorização desejado. O campo Namespace
// pode conter um padrão com '*', que é expandido contra a lista real de
// namespaces apenas na hora de aplicar, nunca no mapeamento.
type Object struct {
	Kind      string              `json:"kind"`
	Name      string              `json:"name"`
	Namespace string              `json:"namespace,omitempty"`
	Rules     []rbacv1.PolicyRule `json:"rules,omitempty"`
	RoleRef   *rbacv1.RoleRef     `json:"roleRef,omitempty"`
	Subjects  []rbacv1.Subject    `json:"subjects,omitempty"`
}

// Key identifica o objeto de forma estável para diff e deduplicação.
func (o Object) Key() string {
	return fmt.Sprintf("%s/%s/%s", o.Kind, o.Namespace, o.Name)
}

// HasNamespacePattern indica se o namespace ainda é um padrão a expandir.
func (o Object) HasNamespacePattern() bool {
	return strings.Contains(o.Namespace, "*")
}

// WithNamespace retorna uma cópia do descritor ancorada em um namespace
// literal (usado na expansão de padrões na hora de aplicar).
func (o Object) WithNamespace(ns string) Object {
	out := o
	out.Namespace = ns
	if out.RoleRef != nil {
		ref := *o.RoleRef
		out.RoleRef = &ref
	}
	return out
}

// Set é um conjunto de objetos indexado por Key, usado tanto para o estado
// desejado (com dedup) quanto para o estado real listado do cluster.
type Set struct {
	byKey map[string]Object
}

func NewSet() *Set {
	return &Set{byKey: map[string]Object{}}
}

// Add insere o objeto; chaves repetidas colapsam em uma só.
func (s *Set) Add(obj Object) {
	s.byKey[obj.Key()] = obj
}

// Has verifica presença por Key.
func (s *Set) Has(key string) bool {
	_, ok := s.byKey[key]
	return ok
}

// Len retorna o número de objetos distintos.
func (s *Set) Len() int {
	return len(s.byKey)
}

// Objects retorna os objetos em ordem indefinida; quem precisa de ordem
// estável ordena pelas Keys.
func (s *Set) Objects() []Object {
	out := make([]Object, 0, len(s.byKey))
	for _, o := range s.byKey {
		out = append(out, o)
	}
	return out
}

// MatchNamespace aplica um padrão simples com '*' (prefixo/sufixo/meio) a um
// nome de namespace.
func MatchNamespace(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	i := strings.Index(pattern, "*")
	if i < 0 {
		return pattern == name
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	return len(name) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(name, prefix) &&
		strings.HasSuffix(name, suffix)
}
