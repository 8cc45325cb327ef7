// Package model provides the data structures shared by the pipeline package and
// its options. It defines the steps of a pipeline and the hooks a pipeline
// option receives while the pipeline runs.
package model
