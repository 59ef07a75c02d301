package agent

import (
	"fmt"

	"github.com/sdace9719/mcp-devops/tools/registry"
)

const systemPrompt = "You are a devops expert proficient in all monitoring, logging and deployment tools. " +
	"You are given access to a live prometheus-mcp server that can be used to query the prometheus database. " +
	"This prometheus is configured to scrape the metrics of all containers within the environment. " +
	"For any queries relating to the user's environment, you should use the prometheus-mcp server to query the prometheus database. " +
	"Do not give a generic response, instead rely on the tools provided to you to answer the question. " +
	"You only have one parent tool, which will be used to call any tool from the registry listed below. " +
	"For any task, gather some necessary information before directly trying to perform the task. " +
	"Instead of trying to get the answer in one shot, divide the task into a discovery phase and an execution phase."

const toolUsageExample = `Consider the following section of the registry:

- name: execute_query
  description: Execute a PromQL instant query against Prometheus
  inputSchema:
    type: object
    properties:
      query:
        type: string
      time:
        type: string
    required:
    - query

The tool name comes from the name field and the possible parameters are
listed under properties, with the mandatory ones under required. To call
execute_query you would provide the following arguments to the parent tool:

tool: execute_query
parameters:
    query: container_cpu_usage_seconds_total

Here parameters is a multiline string with each parameter name and value
pair separated by a colon on its own line, following typical YAML format.
The result of the tool call is returned to you to parse for relevant
content. If the tool has no required parameters and you need no optional
ones, pass an empty string for parameters.`

// buildSystemPrompt assembles the system message: the operator instructions,
// the registry snapshot rendered as YAML and the parent-tool usage example.
func buildSystemPrompt(snap *registry.Snapshot) string {
	return fmt.Sprintf("%s\n\nTool registry: %s\n\nExample: %s", systemPrompt, snap.Context, toolUsageExample)
}
