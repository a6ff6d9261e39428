// Package domain holds the task and content entities shared by the
// scheduler, the pipeline and the stores: tasks and their lifecycle, inputs,
// results, provider outputs and the error sentinels the API maps to status
// codes. It has no infrastructure dependencies.
package domain
