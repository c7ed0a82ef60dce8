package aireview

import (
	"fmt"
	"strings"

	"github.com/mergegate/pkg/models"
)

// Command selects which directive template drives the review
type Command string

const (
	CommandFull    Command = "full"
	CommandSummary Command = "summary"
	CommandGuide   Command = "guide"
	CommandTitle   Command = "title"
)

// System role definitions
const (
	reviewerRole = "You are an expert code reviewer for pull requests."
	resolverRole = "You are an expert at analyzing git merge conflicts."
	analystRole  = "You are an expert at validating code changes against business requirements."
)

// reviewShape declares the exact structured output expected from the full
// review directive
const reviewShape = `Respond with JSON only, in this exact structure:
` + "```json" + `
{
  "summary": "one-paragraph overview of the change",
  "suggestions": [
    {
      "severity": "critical|major|minor|info",
      "type": "bug|security|performance|style|maintainability",
      "file": "path/to/file",
      "line": 42,
      "message": "what is wrong",
      "remediation": "how to fix it"
    }
  ],
  "overall_score": 85,
  "categories": {
    "correctness": 85,
    "security": 90,
    "performance": 80,
    "maintainability": 85,
    "test_coverage": 70
  }
}
` + "```" + `
Scores are integers from 0 to 100.`

const summaryShape = `Respond with JSON only:
` + "```json" + `
{"summary": "concise high-level summary of the change", "overall_score": 85,
 "categories": {"correctness": 85, "security": 90, "performance": 80,
 "maintainability": 85, "test_coverage": 70}}
` + "```"

const guideShape = `Respond with JSON only:
` + "```json" + `
{"guide": "step-by-step reviewer walkthrough of the change, markdown allowed",
 "summary": "one-line overview", "overall_score": 85,
 "categories": {"correctness": 85, "security": 90, "performance": 80,
 "maintainability": 85, "test_coverage": 70}}
` + "```"

const titleShape = `Respond with JSON only:
` + "```json" + `
{"title": "conventional-commit style title for this pull request",
 "summary": "one-line overview", "overall_score": 85,
 "categories": {"correctness": 85, "security": 90, "performance": 80,
 "maintainability": 85, "test_coverage": 70}}
` + "```"

const conflictShape = `Respond with JSON only:
` + "```json" + `
{
  "classification": "imports|formatting|logic|structure|mixed",
  "recommended_strategy": "ours|theirs|manual|ai_assisted",
  "rationale": "why this classification and strategy",
  "confidence": 0.8,
  "resolved_content": "full resolved file content, ONLY when the conflict contains no business logic and you recommend ai_assisted"
}
` + "```"

const validationShape = `Respond with JSON only:
` + "```json" + `
{
  "mappings": [
    {
      "requirement": "requirement text",
      "status": "implemented|missing|partially_implemented|out_of_scope",
      "evidence": "where/how the code addresses it",
      "files": ["path/to/file"]
    }
  ],
  "alignment_score": 80,
  "summary": "overall requirement coverage assessment"
}
` + "```"

// BuildReviewPrompt renders PR metadata, diff text, and optional ticket
// context into the directive template for the given command
func BuildReviewPrompt(pr *models.PullRequestRef, files []models.ChangedFile, command Command, ticket *models.TicketInfo) string {
	var b strings.Builder

	b.WriteString(reviewerRole)
	b.WriteString("\n\n")

	switch command {
	case CommandSummary:
		b.WriteString("Summarize the following pull request for a reviewer in a hurry.\n\n")
	case CommandGuide:
		b.WriteString("Produce a review guide: the order a reviewer should read the changes and what to scrutinize.\n\n")
	case CommandTitle:
		b.WriteString("Propose a precise title for the following pull request.\n\n")
	default:
		b.WriteString("Review the following pull request. Find bugs, security issues, and maintainability problems. Avoid praise and avoid commenting on trivia.\n\n")
	}

	writePRSection(&b, pr)
	if ticket != nil {
		writeTicketSection(&b, ticket)
	}
	writeDiffSection(&b, files)

	switch command {
	case CommandSummary:
		b.WriteString(summaryShape)
	case CommandGuide:
		b.WriteString(guideShape)
	case CommandTitle:
		b.WriteString(titleShape)
	default:
		b.WriteString(reviewShape)
	}

	return b.String()
}

// BuildConflictPrompt renders a conflicted file into the conflict
// classification directive
func BuildConflictPrompt(file models.ConflictFile) string {
	var b strings.Builder

	b.WriteString(resolverRole)
	b.WriteString("\n\nClassify the merge conflict in the file below and recommend a resolution strategy.\n")
	b.WriteString("Only recommend ai_assisted, and only include resolved_content, when the conflict is purely mechanical (imports, formatting, structure) with no business logic.\n\n")
	b.WriteString(fmt.Sprintf("File: %s\n\n```diff\n%s\n```\n\n", file.Filename, file.Patch))
	b.WriteString(conflictShape)

	return b.String()
}

// BuildValidationPrompt renders changes plus ticket requirements into the
// business-logic validation directive
func BuildValidationPrompt(pr *models.PullRequestRef, files []models.ChangedFile, ticket *models.TicketInfo) string {
	var b strings.Builder

	b.WriteString(analystRole)
	b.WriteString("\n\nMap each requirement from the ticket below to the code changes, marking it implemented, missing, partially_implemented, or out_of_scope.\n\n")
	writePRSection(&b, pr)
	writeTicketSection(&b, ticket)
	writeDiffSection(&b, files)
	b.WriteString(validationShape)

	return b.String()
}

func writePRSection(b *strings.Builder, pr *models.PullRequestRef) {
	b.WriteString(fmt.Sprintf("Pull request #%d: %s\n", pr.Number, pr.Title))
	b.WriteString(fmt.Sprintf("Author: %s | %s -> %s | +%d -%d across %d files\n\n",
		pr.Author, pr.HeadBranch, pr.BaseBranch, pr.Additions, pr.Deletions, pr.ChangedFiles))
}

func writeTicketSection(b *strings.Builder, ticket *models.TicketInfo) {
	b.WriteString(fmt.Sprintf("Related ticket %s (%s, priority %s): %s\n",
		ticket.Key, ticket.Status, ticket.Priority, ticket.Summary))
	if ticket.Description != "" {
		b.WriteString(ticket.Description)
		b.WriteString("\n")
	}
	if ticket.AcceptanceCriteria != "" {
		b.WriteString("Acceptance criteria:\n")
		b.WriteString(ticket.AcceptanceCriteria)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeDiffSection(b *strings.Builder, files []models.ChangedFile) {
	b.WriteString("Changed files:\n\n")
	for _, f := range files {
		b.WriteString(fmt.Sprintf("### %s (%s)\n", f.Filename, f.Status))
		if f.Patch != "" {
			b.WriteString("```diff\n")
			b.WriteString(f.Patch)
			b.WriteString("\n```\n")
		}
		b.WriteString("\n")
	}
}
