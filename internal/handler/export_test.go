package handler

// Test-only aliases so the external handler_test package, which must
// import internal/router to assemble the full app, can decode responses
// into the handlers' unexported response types.
type (
	GridResp      = gridResp
	LoginResp     = loginResp
	LookupResp    = lookupResp
	SelectionResp = selectionResp
	SubmitResp    = submitResp
)
