package classify

// #region domains

// Domain enumerates the operator skill domains the gate recognizes.
type Domain string

const (
	DomainInfrastructure Domain = "infrastructure"
	DomainSecurity       Domain = "security"
	DomainData           Domain = "data"
	DomainSoftware       Domain = "software"
	DomainNetwork        Domain = "network"
	DomainFinance        Domain = "finance"
	DomainOperations     Domain = "operations"
)

// #endregion domains

// #region skill-table

// skillRule maps action phrases to a (domain, skill) requirement with a
// base required proficiency on the 1-10 scale.
type skillRule struct {
	phrases   []string
	domain    Domain
	skill     string
	baseLevel int
}

var skillRules = []skillRule{
	{
		phrases:   []string{"deploy", "deployment", "rollout", "release to"},
		domain:    DomainInfrastructure,
		skill:     "deployment",
		baseLevel: 5,
	},
	{
		phrases:   []string{"kubernetes", "k8s", "container orchestration", "terraform", "provision"},
		domain:    DomainInfrastructure,
		skill:     "orchestration",
		baseLevel: 6,
	},
	{
		phrases:   []string{"penetration test", "pentest", "exploit", "vulnerability scan", "security audit"},
		domain:    DomainSecurity,
		skill:     "offensive_security",
		baseLevel: 8,
	},
	{
		phrases:   []string{"encrypt", "decrypt", "key rotation", "certificate", "tls"},
		domain:    DomainSecurity,
		skill:     "cryptography",
		baseLevel: 7,
	},
	{
		phrases:   []string{"migrate database", "database migration", "schema change", "migrate the database"},
		domain:    DomainData,
		skill:     "migration",
		baseLevel: 6,
	},
	{
		phrases:   []string{"drop table", "truncate", "bulk delete", "purge records"},
		domain:    DomainData,
		skill:     "destructive_data_ops",
		baseLevel: 8,
	},
	{
		phrases:   []string{"refactor", "rewrite", "redesign the"},
		domain:    DomainSoftware,
		skill:     "refactoring",
		baseLevel: 4,
	},
	{
		phrases:   []string{"firewall", "dns", "routing", "load balancer", "vpn"},
		domain:    DomainNetwork,
		skill:     "network_config",
		baseLevel: 6,
	},
	{
		phrases:   []string{"payment", "transfer funds", "invoice", "payout", "billing change"},
		domain:    DomainFinance,
		skill:     "financial_ops",
		baseLevel: 7,
	},
	{
		phrases:   []string{"incident response", "on-call", "rollback production", "hotfix"},
		domain:    DomainOperations,
		skill:     "incident_handling",
		baseLevel: 6,
	},
}

// levelModifiers raise the required proficiency when the action text carries
// scale or blast-radius cues. Applied on top of the matched rule's base.
var levelModifiers = []struct {
	phrase string
	delta  int
}{
	{"production", 2},
	{"distributed", 1},
	{"architecture", 1},
	{"microservices", 1},
	{"entire", 1},
	{"all environments", 2},
	{"company-wide", 2},
}

// #endregion skill-table

// #region red-lines

// RedLineCategory classifies a categorical limit independent of scope score.
type RedLineCategory string

const (
	RedLineDestructive RedLineCategory = "destructive_operation"
	RedLineProduction  RedLineCategory = "production_or_public_target"
	RedLineSecurity    RedLineCategory = "security_or_financial_operation"
)

var redLineRules = []struct {
	phrases  []string
	category RedLineCategory
}{
	{
		phrases:  []string{"delete all", "drop table", "truncate", "wipe", "rm -rf", "destroy", "purge", "format disk", "erase"},
		category: RedLineDestructive,
	},
	{
		phrases:  []string{"production", "prod environment", "public-facing", "customer-facing", "live system", "all users"},
		category: RedLineProduction,
	},
	{
		phrases:  []string{"payment", "transfer funds", "credentials", "private key", "disable security", "bypass auth", "payroll"},
		category: RedLineSecurity,
	},
}

// #endregion red-lines

// #region scope-keywords

// Keyword cues feeding the five proportionality scope factors.

var longTaskPhrases = []string{
	"architecture", "migration", "distributed", "redesign", "entire",
	"end-to-end", "from scratch", "overhaul", "microservices",
}

var complexityPhrases = []string{
	"distributed", "microservices", "architecture", "orchestration",
	"multi-region", "cluster", "concurrent", "replication", "sharding",
}

var dependencyPhrases = []string{
	"database", "queue", "cache", "api", "service", "gateway",
	"pipeline", "broker", "registry", "dns", "load balancer",
}

var wideImpactPhrases = []string{
	"production", "all users", "public", "customer-facing", "company-wide",
	"entire", "everything", "global",
}

var mediumImpactPhrases = []string{
	"staging", "team", "shared", "integration environment",
}

var automationPhrases = []string{
	"automate", "automatically", "everything", "all at once", "batch",
	"unattended", "cron", "scheduled",
}

// #endregion scope-keywords

// #region hot-lexicon

// hotLexicon holds urgency and frustration phrases the emotional analyzer
// treats as domain-specific intensity markers.
var hotLexicon = []string{
	"right now", "immediately", "asap", "urgent", "hurry",
	"just do it", "don't care", "whatever it takes", "everything",
	"can't wait", "no time", "now!",
}

// negativeLexicon holds frustration/sentiment phrases for the lexical
// sub-score. Multi-word phrases match before single words.
var negativeLexicon = []string{
	"fed up", "sick of", "tired of", "hate", "broken", "garbage",
	"useless", "stupid", "terrible", "worst", "furious", "angry",
	"ridiculous", "damn", "screw", "rage", "unacceptable",
}

// #endregion hot-lexicon
