package agent

// Prompt templates for the four LLM calls the agent makes. All calls run at
// temperature 0 with the warehouse schema cached in the system prompt where
// it is needed.

const routerSystemPrompt = `You classify retail-analytics questions by the evidence needed to answer them. Respond with exactly one word:
retrieval - answerable from policy/KPI documents alone
sql - answerable from the sales database alone
hybrid - needs both documents and a database query`

const routerUserPrompt = `Question: %s

Classification:`

const generateSystemPrompt = `You write SQLite queries for a retail sales database. Use only the tables and columns listed in the schema below, with names exactly as written. Return only the SQL statement, no commentary.

Schema:
%s`

const generateUserPrompt = `Question: %s

Constraints extracted from documentation:
%s

Relevant documentation:
%s

SQLite query:`

const repairUserPrompt = `This SQLite query failed:
%s

Error:
%s

Fix the query using only tables and columns from the schema. Return only the corrected SQL statement.`

const synthesizeSystemPrompt = `You answer retail-analytics questions from the evidence provided. Respond with a valid JSON object:
{"answer": <value matching the requested format>, "explanation": "<1-2 sentence explanation>"}`

const synthesizeUserPrompt = `Question: %s
Requested answer format: %s

Documentation:
%s

Query results:
%s

JSON response:`
