package k8s

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/example/vkube-rbacsync/backend/internal/rbacmap"
)

// AuthzClient lista, cria e consulta objetos de autorização em um cluster
// remoto. Falhas de transporte são retornadas para o chamador decidir
// (o reconciler trata como retryable na próxima execução).
type AuthzClient struct {
	clientset kubernetes.Interface

	// principalNS é o único namespace onde ServiceAccounts são listados.
	principalNS string
}

// NewAuthzClient monta o cliente de autorização sobre um clientset existente.
func NewAuthzClient(clientset kubernetes.Interface, principalNS string) *AuthzClient {
	return &AuthzClient{clientset: clientset, principalNS: principalNS}
}

// ListObjects retorna o conjunto de objetos de autorização presentes no
// cluster, indexado pelas mesmas chaves que o mapper produz.
func (c *AuthzClient) ListObjects(ctx context.Context) (*rbacmap.Set, error) {
	set := rbacmap.NewSet()

	crs, err := c.clientset.RbacV1().ClusterRoles().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar ClusterRoles: %w", err)
	}
	for _, cr := range crs.Items {
		set.Add(rbacmap.Object{Kind: rbacmap.KindClusterRole, Name: cr.Name})
	}

	crbs, err := c.clientset.RbacV1().ClusterRoleBindings().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar ClusterRoleBindings: %w", err)
	}
	for _, crb := range crbs.Items {
		set.Add(rbacmap.Object{Kind: rbacmap.KindClusterRoleBinding, Name: crb.Name})
	}

	roles, err := c.clientset.RbacV1().Roles(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar Roles: %w", err)
	}
	for _, r := range roles.Items {
		set.Add(rbacmap.Object{Kind: rbacmap.KindRole, Name: r.Name, Namespace: r.Namespace})
	}

	rbs, err := c.clientset.RbacV1().RoleBindings(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar RoleBindings: %w", err)
	}
	for _, rb := range rbs.Items {
		set.Add(rbacmap.Object{Kind: rbacmap.KindRoleBinding, Name: rb.Name, Namespace: rb.Namespace})
	}

	sas, err := c.clientset.CoreV1().ServiceAccounts(c.principalNS).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar ServiceAccounts: %w", err)
	}
	for _, sa := range sas.Items {
		set.Add(rbacmap.Object{Kind: rbacmap.KindServiceAccount, Name: sa.Name, Namespace: sa.Namespace})
	}

	return set, nil
}

// CreateObject materializa um descritor no cluster. AlreadyExists conta como
// sucesso: objetos são aditivos e idempotentes de criar.
func (c *AuthzClient) CreateObject(ctx context.Context, obj rbacmap.Object) error {
	var err error
	switch obj.Kind {
	case rbacmap.KindClusterRole:
		_, err = c.clientset.RbacV1().ClusterRoles().Create(ctx, &rbacv1.ClusterRole{
			ObjectMeta: metav1.ObjectMeta{Name: obj.Name},
			Rules:      obj.Rules,
		}, metav1.CreateOptions{})
	case rbacmap.KindRole:
		_, err = c.clientset.RbacV1().Roles(obj.Namespace).Create(ctx, &rbacv1.Role{
			ObjectMeta: metav1.ObjectMeta{Name: obj.Name, Namespace: obj.Namespace},
			Rules:      obj.Rules,
		}, metav1.CreateOptions{})
	case rbacmap.KindClusterRoleBinding:
		_, err = c.clientset.RbacV1().ClusterRoleBindings().Create(ctx, &rbacv1.ClusterRoleBinding{
			ObjectMeta: metav1.ObjectMeta{Name: obj.Name},
			RoleRef:    *obj.RoleRef,
			Subjects:   obj.Subjects,
		}, metav1.CreateOptions{})
	case rbacmap.KindRoleBinding:
		_, err = c.clientset.RbacV1().RoleBindings(obj.Namespace).Create(ctx, &rbacv1.RoleBinding{
			ObjectMeta: metav1.ObjectMeta{Name: obj.Name, Namespace: obj.Namespace},
			RoleRef:    *obj.RoleRef,
			Subjects:   obj.Subjects,
		}, metav1.CreateOptions{})
	case rbacmap.KindServiceAccount:
		if err := c.ensurePrincipalNamespace(ctx); err != nil {
			return err
		}
		_, err = c.clientset.CoreV1().ServiceAccounts(obj.Namespace).Create(ctx, &corev1.ServiceAccount{
			ObjectMeta: metav1.ObjectMeta{Name: obj.Name, Namespace: obj.Namespace},
		}, metav1.CreateOptions{})
	default:
		return fmt.Errorf("kind de objeto não suportado: %s", obj.Kind)
	}
	if err != nil && !k8serrors.IsAlreadyExists(err) {
		return fmt.Errorf("erro ao criar %s %s: %w", obj.Kind, obj.Name, err)
	}
	return nil
}

// ObjectExists consulta o cluster diretamente por um descritor.
func (c *AuthzClient) ObjectExists(ctx context.Context, obj rbacmap.Object) (bool, error) {
	var err error
	switch obj.Kind {
	case rbacmap.KindClusterRole:
		_, err = c.clientset.RbacV1().ClusterRoles().Get(ctx, obj.Name, metav1.GetOptions{})
	case rbacmap.KindRole:
		_, err = c.clientset.RbacV1().Roles(obj.Namespace).Get(ctx, obj.Name, metav1.GetOptions{})
	case rbacmap.KindClusterRoleBinding:
		_, err = c.clientset.RbacV1().ClusterRoleBindings().Get(ctx, obj.Name, metav1.GetOptions{})
	case rbacmap.KindRoleBinding:
		_, err = c.clientset.RbacV1().RoleBindings(obj.Namespace).Get(ctx, obj.Name, metav1.GetOptions{})
	case rbacmap.KindServiceAccount:
		_, err = c.clientset.CoreV1().ServiceAccounts(obj.Namespace).Get(ctx, obj.Name, metav1.GetOptions{})
	default:
		return false, fmt.Errorf("kind de objeto não suportado: %s", obj.Kind)
	}
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListNamespaces retorna os nomes dos namespaces ativos, usados na expansão
// de padrões com '*' na hora de aplicar.
func (c *AuthzClient) ListNamespaces(ctx context.Context) ([]string, error) {
	nss, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar namespaces: %w", err)
	}
	names := make([]string, 0, len(nss.Items))
	for _, ns := range nss.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

func (c *AuthzClient) ensurePrincipalNamespace(ctx context.Context) error {
	_, err := c.clientset.CoreV1().Namespaces().Create(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: c.principalNS},
	}, metav1.CreateOptions{})
	if err != nil && !k8serrors.IsAlreadyExists(err) {
		return fmt.Errorf("erro ao garantir namespace de principals: %w", err)
	}
	return nil
}
