// Package prompts implements the MCP prompt templates for code analysis.
//
// Prompts are user-triggered: they substitute their arguments into fixed
// text (or a fixed exchange of turns) and never call a collaborator.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Prompt is one prompt template.
type Prompt interface {
	Definition() mcp.Prompt
	Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
}

// All returns every prompt in catalogue order.
func All() []Prompt {
	return []Prompt{
		NewAnalyzeStructurePrompt(),
		NewDebugIssuePrompt(),
		NewExplainFunctionalityPrompt(),
		NewReviewChecklistPrompt(),
	}
}

func arg(req mcp.GetPromptRequest, name string) string {
	if args := req.Params.Arguments; args != nil {
		return args[name]
	}
	return ""
}

func userMessage(text string) mcp.PromptMessage {
	return mcp.PromptMessage{Role: mcp.RoleUser, Content: mcp.NewTextContent(text)}
}

func repoArgument() mcp.PromptOption {
	return mcp.WithArgument("repo_url",
		mcp.RequiredArgument(),
		mcp.ArgumentDescription("URL of the repository"),
	)
}

// ─── analyze_code_structure ──────────────────────────────────────────────────

// AnalyzeStructurePrompt asks for an architecture overview of a repository.
type AnalyzeStructurePrompt struct{}

// NewAnalyzeStructurePrompt creates an AnalyzeStructurePrompt.
func NewAnalyzeStructurePrompt() *AnalyzeStructurePrompt { return &AnalyzeStructurePrompt{} }

// Definition returns the MCP prompt definition for registration.
func (p *AnalyzeStructurePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("analyze_code_structure",
		mcp.WithPromptDescription("Analyze the overall structure and architecture of a codebase"),
		repoArgument(),
	)
}

// Handle renders the prompt.
func (p *AnalyzeStructurePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	repoURL := arg(req, "repo_url")
	return &mcp.GetPromptResult{
		Description: "Code structure analysis",
		Messages: []mcp.PromptMessage{userMessage(fmt.Sprintf(
			"Please analyze the structure and architecture of the repository at %s.\n\n"+
				"Focus on:\n"+
				"1. **Project Structure**: Main directories and their purposes\n"+
				"2. **Technology Stack**: Programming languages, frameworks, and tools used\n"+
				"3. **Architecture Patterns**: Design patterns and architectural decisions\n"+
				"4. **Key Components**: Main modules, classes, or functions\n"+
				"5. **Dependencies**: External libraries and their purposes\n"+
				"6. **Documentation**: README files, comments, and documentation quality\n\n"+
				"Provide a comprehensive overview that would help a new developer understand the codebase quickly.",
			repoURL,
		))},
	}, nil
}

// ─── debug_code_issue ────────────────────────────────────────────────────────

// DebugIssuePrompt asks for help debugging a described issue.
type DebugIssuePrompt struct{}

// NewDebugIssuePrompt creates a DebugIssuePrompt.
func NewDebugIssuePrompt() *DebugIssuePrompt { return &DebugIssuePrompt{} }

// Definition returns the MCP prompt definition for registration.
func (p *DebugIssuePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("debug_code_issue",
		mcp.WithPromptDescription("Get debugging assistance for a specific issue in a repository"),
		repoArgument(),
		mcp.WithArgument("error_description",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("Description of the error or issue"),
		),
	)
}

// Handle renders the prompt.
func (p *DebugIssuePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Debugging assistance",
		Messages: []mcp.PromptMessage{userMessage(fmt.Sprintf(
			"Help me debug an issue in the repository at %s.\n\n"+
				"**Issue Description:**\n%s\n\n"+
				"Please help me:\n"+
				"1. **Identify Potential Causes**: What could be causing this issue?\n"+
				"2. **Locate Relevant Code**: Which files or functions should I examine?\n"+
				"3. **Debugging Steps**: What steps should I take to diagnose the problem?\n"+
				"4. **Common Solutions**: What are typical solutions for this type of issue?\n"+
				"5. **Prevention**: How can I prevent similar issues in the future?\n\n"+
				"Please search through the codebase to provide specific, actionable advice.",
			arg(req, "repo_url"), arg(req, "error_description"),
		))},
	}, nil
}

// ─── explain_code_functionality ──────────────────────────────────────────────

// ExplainFunctionalityPrompt asks for an explanation of code, optionally
// focused on one file or function.
type ExplainFunctionalityPrompt struct{}

// NewExplainFunctionalityPrompt creates an ExplainFunctionalityPrompt.
func NewExplainFunctionalityPrompt() *ExplainFunctionalityPrompt {
	return &ExplainFunctionalityPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ExplainFunctionalityPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("explain_code_functionality",
		mcp.WithPromptDescription("Explain what a piece of code does and how it works"),
		repoArgument(),
		mcp.WithArgument("file_path",
			mcp.ArgumentDescription("Specific file to focus on (optional)"),
		),
		mcp.WithArgument("function_name",
			mcp.ArgumentDescription("Specific function to explain (optional)"),
		),
	)
}

// Handle renders the prompt.
func (p *ExplainFunctionalityPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	focus := ""
	if f := arg(req, "file_path"); f != "" {
		focus += "\n- Focus on file: " + f
	}
	if fn := arg(req, "function_name"); fn != "" {
		focus += "\n- Focus on function: " + fn
	}
	return &mcp.GetPromptResult{
		Description: "Code explanation",
		Messages: []mcp.PromptMessage{userMessage(fmt.Sprintf(
			"Please explain the functionality of code in the repository at %s.%s\n\n"+
				"Please provide:\n"+
				"1. **Purpose**: What does this code do?\n"+
				"2. **Input/Output**: What are the inputs and outputs?\n"+
				"3. **Algorithm**: How does it work step by step?\n"+
				"4. **Dependencies**: What other parts of the code does it depend on?\n"+
				"5. **Usage Examples**: How is this code typically used?\n"+
				"6. **Edge Cases**: What special cases or error conditions are handled?\n\n"+
				"Make the explanation clear and suitable for developers who are new to this codebase.",
			arg(req, "repo_url"), focus,
		))},
	}, nil
}

// ─── code_review_checklist ───────────────────────────────────────────────────

// ReviewChecklistPrompt models a short conversation that produces a code
// review checklist.
type ReviewChecklistPrompt struct{}

// NewReviewChecklistPrompt creates a ReviewChecklistPrompt.
func NewReviewChecklistPrompt() *ReviewChecklistPrompt { return &ReviewChecklistPrompt{} }

// Definition returns the MCP prompt definition for registration.
func (p *ReviewChecklistPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("code_review_checklist",
		mcp.WithPromptDescription("Build a comprehensive code review checklist for a repository"),
		repoArgument(),
	)
}

const reviewChecklist = `I'll help you create a thorough code review checklist. Let me analyze the repository structure and provide a customized checklist based on the codebase.

**Code Review Checklist:**

**1. Code Quality & Style**
- [ ] Consistent coding style and formatting
- [ ] Meaningful variable and function names
- [ ] Appropriate comments and documentation
- [ ] No commented-out code or debug statements

**2. Functionality & Logic**
- [ ] Code does what it's supposed to do
- [ ] Edge cases are handled properly
- [ ] Error handling is appropriate
- [ ] No obvious bugs or logical errors

**3. Performance & Efficiency**
- [ ] No unnecessary computations or redundant code
- [ ] Efficient algorithms and data structures
- [ ] Proper resource management (memory, files, connections)
- [ ] No performance bottlenecks

**4. Security**
- [ ] Input validation and sanitization
- [ ] No hardcoded secrets or credentials
- [ ] Proper authentication and authorization
- [ ] Protection against common vulnerabilities

**5. Testing**
- [ ] Adequate test coverage
- [ ] Tests are meaningful and well-written
- [ ] All tests pass
- [ ] Integration tests where appropriate

**6. Documentation**
- [ ] README is up to date
- [ ] API documentation is complete
- [ ] Code comments explain complex logic
- [ ] Change log is updated

Would you like me to analyze specific files or aspects of the codebase?`

// Handle renders the three-turn exchange.
func (p *ReviewChecklistPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Code review checklist",
		Messages: []mcp.PromptMessage{
			userMessage(fmt.Sprintf(
				"I need to perform a code review for the repository at %s. Can you help me create a comprehensive checklist?",
				arg(req, "repo_url"),
			)),
			{Role: mcp.RoleAssistant, Content: mcp.NewTextContent(reviewChecklist)},
			userMessage("Please analyze the repository and provide specific recommendations based on the actual code structure and patterns you find."),
		},
	}, nil
}
