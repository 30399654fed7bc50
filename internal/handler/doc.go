// Package handler implements the edge request handler. It forwards each
// request to the origin, answers the client, and hands eligible requests to
// the tracking reporter as detached background tasks.
package handler
