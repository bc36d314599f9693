// Package mocks provides scripted collaborators for pipeline tests.
//
//	oracle := mocks.NewMockLLMClient()
//	oracle.Script("router", `{"channel":"debug","reason":"traceback"}`)
//	oracle.Script("task_planner", `{"tasks":[{"step":1,"goal":"fix parse"}]}`)
//
// Responses queued with Script are consumed in order per stage. A stage with
// an empty queue falls back to CompleteFunc.
package mocks
