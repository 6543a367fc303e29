package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		nodeNamingPolicy(),
		skillSourcesPolicy(),
		retryBoundsPolicy(),
		runTimeoutPolicy(),
		graphShapePolicy(),
		testSkillsPolicy(),
	}
}

// nodeNamingPolicy asks for snake_case node names.
func nodeNamingPolicy() Policy {
	return Policy{
		Name:        "node-naming",
		Description: "Node names should be lowercase snake_case",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package skilldag.policies.naming

deny contains violation if {
	some skill in input.workflow.skills
	not regex.match("^[a-z][a-z0-9_]*$", skill.name)
	violation := {
		"message": sprintf("node name '%s' should be lowercase snake_case", [skill.name]),
		"node": skill.name,
	}
}
`,
	}
}

// skillSourcesPolicy keeps file references inside the skills directory.
func skillSourcesPolicy() Policy {
	return Policy{
		Name:        "skill-sources",
		Description: "Skill file references must be relative and stay inside the skills directory",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"security"},
		Rego: `package skilldag.policies.sources

deny contains violation if {
	some skill in input.workflow.skills
	contains(skill.uses, "..")
	violation := {
		"message": sprintf("node %s: reference '%s' must not contain '..'", [skill.name, skill.uses]),
		"node": skill.name,
	}
}

deny contains violation if {
	some skill in input.workflow.skills
	startswith(skill.uses, "/")
	violation := {
		"message": sprintf("node %s: reference '%s' must be relative", [skill.name, skill.uses]),
		"node": skill.name,
	}
}
`,
	}
}

// retryBoundsPolicy flags retry budgets above ten attempts.
func retryBoundsPolicy() Policy {
	return Policy{
		Name:        "retry-bounds",
		Description: "Retry budgets should not exceed 10 attempts",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"reliability"},
		Rego: `package skilldag.policies.retry

max_attempts := 10

deny contains violation if {
	input.workflow.retry.max_retries > max_attempts
	violation := {
		"message": sprintf("workflow retry allows %d attempts (limit %d)", [input.workflow.retry.max_retries, max_attempts]),
	}
}

deny contains violation if {
	some skill in input.workflow.skills
	skill.retry.max_retries > max_attempts
	violation := {
		"message": sprintf("node %s retry allows %d attempts (limit %d)", [skill.name, skill.retry.max_retries, max_attempts]),
		"node": skill.name,
	}
}
`,
	}
}

// runTimeoutPolicy notes workflows without a run deadline.
func runTimeoutPolicy() Policy {
	return Policy{
		Name:        "run-timeout",
		Description: "Workflows should set a run timeout",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"reliability"},
		Rego: `package skilldag.policies.timeout

deny contains "workflow has no run timeout" if {
	not input.workflow.timeout
}
`,
	}
}

// graphShapePolicy flags very deep or very wide graphs.
func graphShapePolicy() Policy {
	return Policy{
		Name:        "graph-shape",
		Description: "Graphs should stay within 20 layers and 200 nodes",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"conventions"},
		Rego: `package skilldag.policies.graph

deny contains violation if {
	input.graph.depth > 20
	violation := {"message": sprintf("graph is %d layers deep (limit 20)", [input.graph.depth])}
}

deny contains violation if {
	count(input.workflow.skills) > 200
	violation := {"message": sprintf("workflow has %d nodes (limit 200)", [count(input.workflow.skills)])}
}
`,
	}
}

// testSkillsPolicy blocks the failure-injection built-ins in production.
func testSkillsPolicy() Policy {
	return Policy{
		Name:        "test-skills",
		Description: "builtin::fail and builtin::flaky must not run in production",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"environment"},
		Rego: `package skilldag.policies.environment

test_skills := {"builtin::fail", "builtin::flaky"}

deny contains violation if {
	input.context.environment == "production"
	some skill in input.workflow.skills
	skill.uses in test_skills
	violation := {
		"message": sprintf("node %s uses test skill %s in production", [skill.name, skill.uses]),
		"node": skill.name,
		"severity": "critical",
	}
}
`,
	}
}
