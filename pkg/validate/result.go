package validate

// Violation codes, one per defect class. Stage order determines the
// order codes appear in a result.
const (
	CodeSyntaxError                = "SYNTAX_ERROR"
	CodeUnknownPrimitive           = "UNKNOWN_PRIMITIVE"
	CodeUnstablePrimitive          = "UNSTABLE_PRIMITIVE"
	CodeFallbackDisabled           = "FALLBACK_DISABLED"
	CodeMissingInput               = "MISSING_INPUT"
	CodeTypeMismatch               = "TYPE_MISMATCH"
	CodeUnknownInput               = "UNKNOWN_INPUT"
	CodeCircularDependency         = "CIRCULAR_DEPENDENCY"
	CodeDanglingReference          = "DANGLING_REFERENCE"
	CodeMalformedReference         = "MALFORMED_REFERENCE"
	CodePolicyViolation            = "POLICY_VIOLATION"
	CodeTargetUnsupported          = "TARGET_UNSUPPORTED"
	CodeFallbackConstraintViolated = "FALLBACK_CONSTRAINT_VIOLATED"
)

// Severity classifies a violation
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Violation is one defect found during validation
type Violation struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	NodeID   string   `json:"node_id,omitempty"`
	Field    string   `json:"field,omitempty"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of one validation run. Violations and
// Warnings keep the order the stages found them in; the result is
// never mutated after it is returned.
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
	Warnings   []Violation `json:"warnings"`
}

// newResult creates an empty, still-mutable result.
func newResult() *Result {
	return &Result{
		Violations: []Violation{},
		Warnings:   []Violation{},
	}
}

// add routes a violation into the error or warning list by severity.
func (r *Result) add(v Violation) {
	if v.Severity == "" {
		v.Severity = SeverityError
	}
	if v.Severity == SeverityError {
		r.Violations = append(r.Violations, v)
	} else {
		r.Warnings = append(r.Warnings, v)
	}
}

// addError appends an error-severity violation.
func (r *Result) addError(code, message, nodeID, field string) {
	r.add(Violation{Code: code, Message: message, NodeID: nodeID, Field: field, Severity: SeverityError})
}

// addWarning appends a warning-severity violation.
func (r *Result) addWarning(code, message, nodeID, field string) {
	r.add(Violation{Code: code, Message: message, NodeID: nodeID, Field: field, Severity: SeverityWarning})
}

// finalize computes the validity flag: valid iff no error-severity
// entry accumulated.
func (r *Result) finalize() {
	r.Valid = len(r.Violations) == 0
}

// HasCode reports whether any violation or warning carries the code.
func (r *Result) HasCode(code string) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	for _, v := range r.Warnings {
		if v.Code == code {
			return true
		}
	}
	return false
}

// ByCode returns every violation and warning carrying the code, in
// result order.
func (r *Result) ByCode(code string) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Code == code {
			out = append(out, v)
		}
	}
	for _, v := range r.Warnings {
		if v.Code == code {
			out = append(out, v)
		}
	}
	return out
}
