package permtypes

import (
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Wildcard libera todos os recursos/verbos de uma regra.
const Wildcard = "*"

// Tiers de privilégio embutidos.
const (
	TierAdmin    = "admin"
	TierOps      = "ops"
	TierDev      = "dev"
	TierReadonly = "readonly"
	TierCustom   = "custom"
)

// ErrUnknownTier indica um tier não registrado no catálogo.
var ErrUnknownTier = errors.New("tier de permissão desconhecido")

// Definition descreve a forma estrutural de um tier: quais recursos e verbos
// ele concede e como ele pode ser escopado por namespace.
type Definition struct {
	Tier                   string   `json:"tier"`
	Label                  string   `json:"label"`
	Description            string   `json:"description,omitempty"`
	APIGroups              []string `json:"apiGroups,omitempty"`
	Resources              []string `json:"resources,omitempty"`
	Verbs                  []string `json:"verbs,omitempty"`
	AllowPartialNamespaces bool     `json:"allowPartialNamespaces"`
	RequireAllNamespaces   bool     `json:"requireAllNamespaces"`
}

// Catalog é o registro imutável de tiers, montado uma vez no startup e
// injetado em quem precisa (nunca um singleton mutável).
type Catalog struct {
	defs  map[string]Definition
	order []string
}

func builtinDefinitions() []Definition {
	return []Definition{
		{
			Tier:                 TierAdmin,
			Label:                "Administrador",
			Description:          "Acesso total ao cluster, sempre em todos os namespaces.",
			APIGroups:            []string{Wildcard},
			Resources:            []string{Wildcard},
			Verbs:                []string{Wildcard},
			RequireAllNamespaces: true,
		},
		{
			Tier:                   TierOps,
			Label:                  "Operações",
			Description:            "Gerencia workloads e configuração, sem tocar em RBAC.",
			APIGroups:              []string{"", "apps", "batch", "networking.k8s.io"},
			Resources:              []string{Wildcard},
			Verbs:                  []string{"get", "list", "watch", "create", "update", "patch", "delete"},
			AllowPartialNamespaces: true,
		},
		{
			Tier:                   TierDev,
			Label:                  "Desenvolvedor",
			Description:            "Cria e atualiza workloads nos namespaces do time.",
			APIGroups:              []string{"", "apps", "batch"},
			Resources:              []string{"pods", "pods/log", "services", "configmaps", "deployments", "statefulsets", "daemonsets", "replicasets", "jobs", "cronjobs"},
			Verbs:                  []string{"get", "list", "watch", "create", "update", "patch"},
			AllowPartialNamespaces: true,
		},
		{
			Tier:                   TierReadonly,
			Label:                  "Somente leitura",
			APIGroups:              []string{Wildcard},
			Resources:              []string{Wildcard},
			Verbs:                  []string{"get", "list", "watch"},
			AllowPartialNamespaces: true,
		},
		{
			Tier:                   TierCustom,
			Label:                  "Customizado",
			Description:            "Referencia uma ClusterRole autorada diretamente no cluster.",
			AllowPartialNamespaces: true,
		},
	}
}

// New monta o catálogo com os tiers embutidos.
func New() *Catalog {
	c := &Catalog{defs: map[string]Definition{}}
	for _, d := range builtinDefinitions() {
		c.defs[d.Tier] = d
		c.order = append(c.order, d.Tier)
	}
	return c
}

// Load monta o catálogo e, se path não for vazio, aplica overrides de um
// arquivo YAML (lista de Definition). Overrides substituem o tier inteiro.
func Load(path string) (*Catalog, error) {
	c := New()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler arquivo de tiers: %w", err)
	}
	var overrides []Definition
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("erro ao interpretar arquivo de tiers: %w", err)
	}
	for _, d := range overrides {
		if d.Tier == "" {
			return nil, fmt.Errorf("override de tier sem campo tier")
		}
		if _, ok := c.defs[d.Tier]; !ok {
			c.order = append(c.order, d.Tier)
		}
		c.defs[d.Tier] = d
	}
	return c, nil
}

// Lookup retorna a definição de um tier ou ErrUnknownTier.
func (c *Catalog) Lookup(tier string) (Definition, error) {
	d, ok := c.defs[tier]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return d, nil
}

// List retorna todas as definições na ordem de registro.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, tier := range c.order {
		out = append(out, c.defs[tier])
	}
	return out
}
