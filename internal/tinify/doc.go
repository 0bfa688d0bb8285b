// Package tinify talks to the remote shrink service for one file at a time.
//
// A call uploads the raw image, reads the JSON verdict and either records the
// file in the skip-list (gain below the threshold) or downloads the compressed
// payload and atomically replaces the original. Compress never returns an
// error: network, protocol and filesystem failures are folded into a Failed
// outcome so a batch always settles.
package tinify
