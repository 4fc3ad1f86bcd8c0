// Package authz decides whether a resolved identity may log in and which
// roles it receives.
//
// Admission uses two optional allow-lists: groups and email domains. A list
// that is empty disables its gate, and "*" makes a gate admit everyone. The
// user is admitted when any enabled gate admits them. With no gate enabled
// everyone is admitted.
//
// Roles come from the admin group shortcut and the group to role mapping:
//
//	policy := authz.Policy{
//		AllowedGroups: []string{"eng", "ops"},
//		AdminGroup:    "alerta-admins",
//		GroupRoles:    map[string]string{"eng": "developer", "ops": "developer"},
//	}
//	evaluator := authz.NewEvaluator(policy, accountStore)
//	decision, err := evaluator.Evaluate(id)
package authz
