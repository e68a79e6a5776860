// Package model uploads SBM meshes to OpenGL and draws them.
package model

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/sb6go/internal/logger"
	"github.com/Faultbox/sb6go/pkg/formats"
)

// Object is an SBM mesh resident on the GPU.
type Object struct {
	vao uint32
	vbo uint32
	ebo uint32

	indexType  uint32
	numIndices int32

	subObjects []formats.SBMSubObject
}

// New uploads the vertex and index data of a decoded SBM file.
// IMPORTANT: requires a current OpenGL context.
func New(m *formats.SBM) (*Object, error) {
	vertices, err := m.VertexBytes()
	if err != nil {
		return nil, err
	}
	indices, err := m.IndexBytes()
	if err != nil {
		return nil, err
	}

	o := &Object{subObjects: m.SubObjects}

	gl.GenVertexArrays(1, &o.vao)
	gl.BindVertexArray(o.vao)

	gl.GenBuffers(1, &o.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, o.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices), ptr(vertices), gl.STATIC_DRAW)

	for i, a := range m.Attributes {
		loc := uint32(i)
		offset := gl.PtrOffset(int(a.DataOffset))
		if a.Integer() {
			gl.VertexAttribIPointer(loc, int32(a.Size), a.Type, int32(a.Stride), offset)
		} else {
			gl.VertexAttribPointer(loc, int32(a.Size), a.Type, a.Normalized(), int32(a.Stride), offset)
		}
		gl.EnableVertexAttribArray(loc)
	}

	if m.IndexData != nil {
		o.indexType = m.IndexData.IndexType
		o.numIndices = int32(m.IndexData.IndexCount)

		gl.GenBuffers(1, &o.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, o.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(indices), ptr(indices), gl.STATIC_DRAW)
	}

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		o.Delete()
		return nil, fmt.Errorf("uploading model: GL error 0x%04X", code)
	}

	logger.Named("model").Debug("model uploaded",
		zap.Uint32("vao", o.vao),
		zap.Int("attributes", len(m.Attributes)),
		zap.Int("vertexBytes", len(vertices)),
		zap.Int32("indices", o.numIndices),
		zap.Int("subObjects", len(o.subObjects)),
	)
	return o, nil
}

// NumSubObjects returns the number of drawable sub-objects.
func (o *Object) NumSubObjects() int {
	return len(o.subObjects)
}

// SubObjectInfo returns the vertex range of sub-object i.
func (o *Object) SubObjectInfo(i int) (first, count uint32, ok bool) {
	if i < 0 || i >= len(o.subObjects) {
		return 0, 0, false
	}
	s := o.subObjects[i]
	return s.First, s.Count, true
}

// Indexed reports whether the object draws through an index buffer.
func (o *Object) Indexed() bool {
	return o.ebo != 0
}

// Render draws the first sub-object, or the whole index buffer when indexed.
func (o *Object) Render(instances int32) {
	o.RenderSubObject(0, instances)
}

// RenderSubObject draws sub-object i as triangles with the given instance count.
// Indexed objects always draw every index.
func (o *Object) RenderSubObject(i int, instances int32) {
	if instances < 1 {
		return
	}

	gl.BindVertexArray(o.vao)
	defer gl.BindVertexArray(0)

	if o.Indexed() {
		gl.DrawElementsInstanced(gl.TRIANGLES, o.numIndices, o.indexType, nil, instances)
		return
	}

	first, count, ok := o.SubObjectInfo(i)
	if !ok || count == 0 {
		return
	}
	gl.DrawArraysInstanced(gl.TRIANGLES, int32(first), int32(count), instances)
}

// Delete releases the GL objects.
func (o *Object) Delete() {
	if o.ebo != 0 {
		gl.DeleteBuffers(1, &o.ebo)
		o.ebo = 0
	}
	if o.vbo != 0 {
		gl.DeleteBuffers(1, &o.vbo)
		o.vbo = 0
	}
	if o.vao != 0 {
		gl.DeleteVertexArrays(1, &o.vao)
		o.vao = 0
	}
}

func ptr(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return gl.Ptr(data)
}
