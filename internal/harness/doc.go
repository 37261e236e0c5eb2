// Package harness runs scripted scenarios without a real browser.
//
// A scenario bundles a variable table, an instruction template and a fake
// page. The harness expands the template, runs the resulting script through
// the interpreter against testutil.FakeBrowser, and evaluates assertions on
// the recorded browser calls, run log entries and expansion warnings.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: login_loop
//	description: "Types every user into the login form"
//	vars:
//	  columns: [user]
//	  rows:
//	    - [alice]
//	    - [bob]
//	template:
//	  - [command, selector_type, selector_value, value, option1, option2]
//	  - [navigate, "-", "-", "https://example.com/login"]
//	  - [for]
//	  - [input, id, user, $user]
//	  - [forend]
//	page:
//	  elements:
//	    - { type: id, value: user }
//	assertions:
//	  - type: call_count
//	    method: Type
//	    count: 2
//	  - type: log_count
//	    level: ERROR
//	    count: 0
//
// vars and template may instead name files with vars_file and
// template_file; relative paths resolve against the scenario's directory.
//
// # Assertion Types
//
//   - call_contains: a browser call with the method (and args, if given)
//   - call_order: methods appear in the given order, not necessarily adjacent
//   - call_count: a method is called exactly count times
//   - log_contains: a run log entry at level (if given) contains message
//   - log_count: exactly count entries at level
//   - warning_count: exactly count expansion warnings (of kind, if given)
//
// # Deterministic Testing
//
// Runs use testutil.DeterministicClock for log timestamps, no settle
// delays, and a private temporary directory for screenshots. Paths under
// that directory are reported relative to it, so results are identical
// across runs and can be compared against golden files.
package harness
