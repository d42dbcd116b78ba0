// Package formats owns the container vocabulary of the converter: the
// supported set, the codec recipe table used to build engine arguments, the
// container to media-type mapping, and upload validation.
//
// Everything here is pure. Resolve never fails; unknown pairs fall back to
// the default H.264/AAC recipe.
package formats
