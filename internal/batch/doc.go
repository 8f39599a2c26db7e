// Package batch drives a chunked transcription run: it trims the timeline
// to the requested window, splits it into fixed-length segments, submits
// each one and joins the results in segment order.
package batch
