// Package shaders provides embedded GLSL shader sources.
package shaders

import _ "embed"

// TextureVertexShader draws a full-screen triangle for texture previews.
//
//go:embed texture.vert
var TextureVertexShader string

// TextureFragmentShader samples a 2D texture at a fixed mip level.
//
//go:embed texture.frag
var TextureFragmentShader string

// ModelVertexShader places mesh instances on a grid.
//
//go:embed model.vert
var ModelVertexShader string

// ModelFragmentShader is a Blinn-Phong shader for mesh previews.
//
//go:embed model.frag
var ModelFragmentShader string
