// Package httpapi serves the IDE's REST API with gin.
//
// POST /api/compile runs a project file through the sandbox executor and
// always answers a well-formed request with 200 and a body of the form
// {"output": ..., "error": ...}. The /api/projects routes create projects and
// list, read, save, create and archive their files through the workspace
// store. Workspace errors map to 404, 409 and 400; anything else is a 500.
package httpapi
