package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/getnao/nao-cli/agent"
	"github.com/getnao/nao-cli/model"
	"github.com/getnao/nao-cli/server"
)

// finalPromptTemplate is the deterministic second turn: after the agent's
// free-form analysis it forces the answer into a {"query": ...} object.
// Single-quoted JSON in the instructions matches what the agent tends to
// echo back; extraction repairs it either way.
const finalPromptTemplate = `Based on your previous analysis, provide the final SQL query that answers the original question.

Format your answer as a JSON on this format: {'query': 'YOUR_SQL_QUERY_HERE'}
Output schema of the query should have these columns: {{columns}}

If you cannot answer, respond with: {'query': null}`

// Evaluator runs single test cases against a live agent and execution
// server pair.
type Evaluator struct {
	Agent         *agent.Client
	SQL           *server.SQLClient
	ProjectFolder string
	DatabaseID    string
}

// RunTest evaluates one test case end to end. It never returns an error:
// every failure mode, panics included, is captured on the returned
// TestResult so a single broken test cannot abort the run.
func (e *Evaluator) RunTest(ctx context.Context, tc model.TestCase) (result model.TestResult) {
	start := time.Now()
	result = model.TestResult{Name: tc.Name}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprint(r)
			result.IsCorrect = false
		}
		result.TimeSeconds = time.Since(start).Seconds()
	}()

	// Step 1: the expected SQL establishes the expected data and the
	// column hint for the final prompt. An execution failure is recorded
	// but does not stop the test: the agent is still probed, correctness
	// just cannot hold without expected data.
	var columns []string
	if tc.SQL != "" {
		expected := e.SQL.Execute(ctx, tc.SQL, e.ProjectFolder, e.DatabaseID)
		if expected.Failed() {
			result.Error = "Expected SQL error: " + expected.Err
		} else {
			result.ExpectedData = expected.Data
			result.BytesProcessed += expected.BytesProcessed
			if len(expected.Data) > 0 {
				columns = columnNames(expected.Data[0])
			}
		}
	} else if len(tc.SchemaOutput) > 0 {
		columns = tc.SchemaOutput
	}

	// Step 2: free-form analysis turn.
	_, tokens, history, err := e.Agent.SendPrompt(ctx, tc.Prompt, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.TotalTokens += tokens

	// Step 3: forced-JSON extraction turn, continuing the conversation.
	finalPrompt, err := renderFinalPrompt(columns)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.FinalPrompt = finalPrompt

	finalResponse, tokens, _, err := e.Agent.SendPrompt(ctx, finalPrompt, history)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.TotalTokens += tokens
	result.AgentResponse = finalResponse

	// Steps 4-5: extract and score.
	extracted := model.ExtractQueryJSON(finalResponse)
	if tc.ExpectsNoAnswer() {
		e.scoreNoAnswer(extracted, &result)
	} else {
		e.scoreAnswer(ctx, extracted, &result)
	}
	return result
}

// scoreNoAnswer handles tests that assert the agent should abstain. A
// missing extraction, a null query, an empty query, and the literal string
// "null" all count as abstaining.
func (e *Evaluator) scoreNoAnswer(extracted map[string]any, result *model.TestResult) {
	query, ok := model.QueryString(extracted)
	if !ok || query == "null" {
		result.HasAnswer = nil
		result.IsCorrect = true
		return
	}

	result.HasAnswer = model.BoolPtr(true)
	result.AgentSQL = query
	result.IsCorrect = false
	result.Error = "Agent provided an answer when none was expected"
}

// scoreAnswer handles tests with ground-truth SQL: the extracted query is
// executed and its result set compared against the expected data.
func (e *Evaluator) scoreAnswer(ctx context.Context, extracted map[string]any, result *model.TestResult) {
	query, ok := model.QueryString(extracted)
	if !ok {
		result.HasAnswer = model.BoolPtr(false)
		result.Error = "Could not extract JSON query from agent response"
		return
	}

	result.HasAnswer = model.BoolPtr(true)
	result.AgentSQL = query

	if result.ExpectedData == nil {
		// The expected SQL failed earlier; that error is already recorded.
		return
	}

	actual := e.SQL.Execute(ctx, query, e.ProjectFolder, e.DatabaseID)
	if actual.Failed() {
		result.Error = "Agent SQL error: " + actual.Err
		return
	}

	result.ActualData = actual.Data
	result.BytesProcessed += actual.BytesProcessed
	result.IsCorrect = model.CompareResults(result.ExpectedData, actual.Data)
}

func renderFinalPrompt(columns []string) (string, error) {
	hint := strings.Join(columns, ", ")
	if hint == "" {
		hint = "unknown"
	}
	rendered, err := raymond.Render(finalPromptTemplate, map[string]string{"columns": hint})
	if err != nil {
		return "", fmt.Errorf("failed to render final prompt: %w", err)
	}
	return rendered, nil
}

// columnNames derives the column hint from a result row. Rows are maps, so
// names are sorted to keep the final prompt deterministic.
func columnNames(row model.Row) []string {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
