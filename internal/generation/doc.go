// Package generation defines the boundary between the pipeline and external
// text/vision completion services. Providers implement the Provider
// interface and classify their failures as transient or fatal so that the
// pipeline can decide whether a stage is worth retrying. The package also
// owns the prompt templates sent for each pipeline stage.
package generation
